package archive

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var ErrEmptyKey = errors.New("paste service returned no key")

// Paste uploads long text to a hastebin compatible service and returns the public url.
type Paste struct {
	baseURL string
	client  *http.Client
}

func NewPaste(baseURL string, timeout time.Duration) *Paste {
	return &Paste{baseURL: strings.TrimSuffix(baseURL, "/"), client: &http.Client{Timeout: timeout}}
}

func (p *Paste) Archive(ctx context.Context, text string) (string, error) {
	req, errReq := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/documents", strings.NewReader(text))
	if errReq != nil {
		return "", errors.Wrap(errReq, "Failed to create paste request")
	}

	req.Header.Set("Content-Type", "text/plain")

	resp, errResp := p.client.Do(req)
	if errResp != nil {
		return "", errors.Wrap(errResp, "Failed to upload paste")
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("Invalid paste response code: %d", resp.StatusCode)
	}

	var document struct {
		Key string `json:"key"`
	}

	if errDecode := json.NewDecoder(resp.Body).Decode(&document); errDecode != nil {
		return "", errors.Wrap(errDecode, "Failed to decode paste response")
	}

	if document.Key == "" {
		return "", ErrEmptyKey
	}

	return p.baseURL + "/" + document.Key, nil
}
