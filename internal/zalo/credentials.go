package zalo

import (
	"encoding/json"
	"fmt"
	"strings"

	zalohub_errors "zalo-hub/pkg/errors"
)

type cookieEntry struct {
	Key   string `json:"key"`
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ParseCredentials validates a stored credential triplet. The cookie must be a
// JSON array of cookies or an object with a non-empty "cookies" array.
func ParseCredentials(cookie, imei, userAgent string) (Credentials, error) {
	cookie = strings.TrimSpace(cookie)
	imei = strings.TrimSpace(imei)
	userAgent = strings.TrimSpace(userAgent)

	if cookie == "" || imei == "" || userAgent == "" {
		return Credentials{}, fmt.Errorf("%w: cookie, imei and user agent are required", zalohub_errors.ErrInvalidCredentials)
	}

	entries, err := decodeCookies([]byte(cookie))
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: %v", zalohub_errors.ErrInvalidCredentials, err)
	}
	if len(entries) == 0 {
		return Credentials{}, fmt.Errorf("%w: cookie list is empty", zalohub_errors.ErrInvalidCredentials)
	}
	for i, e := range entries {
		if e.Key == "" && e.Name == "" {
			return Credentials{}, fmt.Errorf("%w: cookie %d has no name", zalohub_errors.ErrInvalidCredentials, i)
		}
	}

	return Credentials{
		Cookie:    json.RawMessage(cookie),
		IMEI:      imei,
		UserAgent: userAgent,
	}, nil
}

func decodeCookies(raw []byte) ([]cookieEntry, error) {
	switch raw[0] {
	case '[':
		var entries []cookieEntry
		if err := json.Unmarshal(raw, &entries); err != nil {
			return nil, fmt.Errorf("cookie is not a valid cookie array: %w", err)
		}
		return entries, nil
	case '{':
		var wrapper struct {
			Cookies []cookieEntry `json:"cookies"`
		}
		if err := json.Unmarshal(raw, &wrapper); err != nil {
			return nil, fmt.Errorf("cookie is not a valid cookie object: %w", err)
		}
		return wrapper.Cookies, nil
	default:
		return nil, fmt.Errorf("cookie must be JSON")
	}
}
