// File: transfer/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Request configuration helpers layered on the typed setters.

package transfer

import (
	"fmt"
	"time"

	"github.com/momentics/hioload-transfer/api"
)

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func boolInt(state bool, on int64) int64 {
	if state {
		return on
	}
	return 0
}

// SetURL sets the request URL.
func (h *Handle) SetURL(url string) error {
	return h.SetStringOption(api.OptURL, &url)
}

// SetUserAgent sets the User-Agent header value.
func (h *Handle) SetUserAgent(userAgent string) error {
	return h.SetStringOption(api.OptUserAgent, &userAgent)
}

// SetProxy routes the transfer through proxy ("host:port"). An empty proxy
// clears the setting.
func (h *Handle) SetProxy(proxy string) error {
	return h.SetStringOption(api.OptProxy, optionalString(proxy))
}

// SetSSLPeerVerification toggles verification of the peer certificate.
func (h *Handle) SetSSLPeerVerification(state bool) error {
	return h.SetIntOption(api.OptSSLVerifyPeer, boolInt(state, 1))
}

// SetSSLHostVerification toggles verification of the certificate host name.
func (h *Handle) SetSSLHostVerification(state bool) error {
	return h.SetIntOption(api.OptSSLVerifyHost, boolInt(state, 2))
}

// SetCAInfo sets the CA bundle path; empty restores the engine default.
func (h *Handle) SetCAInfo(path string) error {
	return h.SetStringOption(api.OptCAInfo, optionalString(path))
}

// SetConnectTimeout bounds connection establishment, in milliseconds.
func (h *Handle) SetConnectTimeout(timeout time.Duration) error {
	return h.SetIntOption(api.OptConnectTimeoutMS, timeout.Milliseconds())
}

// SetGet switches the request to GET.
func (h *Handle) SetGet() error {
	return h.SetIntOption(api.OptHTTPGet, 1)
}

// SetPost switches the request to POST.
func (h *Handle) SetPost() error {
	return h.SetIntOption(api.OptPost, 1)
}

// SetPostFields uses buf as the request body without copying it. buf must
// not be modified until the transfer completes.
func (h *Handle) SetPostFields(buf []byte) error {
	if err := h.SetIntOption(api.OptPostFieldSizeLarge, int64(len(buf))); err != nil {
		return err
	}
	if err := h.SetObjectOption(api.OptPostFields, buf); err != nil {
		return err
	}
	h.postFields = buf
	return nil
}

// SetCopyPostFields hands the engine a copy of buf as the request body.
func (h *Handle) SetCopyPostFields(buf []byte) error {
	if err := h.SetIntOption(api.OptPostFieldSizeLarge, int64(len(buf))); err != nil {
		return err
	}
	return h.SetObjectOption(api.OptCopyPostFields, append([]byte(nil), buf...))
}

// SetCookieFile reads cookies from file and enables the cookie engine.
func (h *Handle) SetCookieFile(file string) error {
	return h.SetStringOption(api.OptCookieFile, &file)
}

// EnableCookieSupport enables the cookie engine without a cookie file.
func (h *Handle) EnableCookieSupport() error {
	return h.SetCookieFile("")
}

// SetUsername sets the authentication user name.
func (h *Handle) SetUsername(username string) error {
	return h.SetStringOption(api.OptUsername, &username)
}

// SetPassword sets the authentication password.
func (h *Handle) SetPassword(password string) error {
	return h.SetStringOption(api.OptPassword, &password)
}

// Escape percent-encodes s.
func (h *Handle) Escape(s string) (string, error) {
	out, ok := h.raw.Escape(s)
	if !ok {
		return "", fmt.Errorf("escape: %w", api.ErrAllocationFailure)
	}
	return out, nil
}

// Unescape decodes a percent-encoded string.
func (h *Handle) Unescape(encoded string) (string, error) {
	out, ok := h.raw.Unescape(encoded)
	if !ok {
		return "", fmt.Errorf("unescape: %w", api.ErrAllocationFailure)
	}
	return string(out), nil
}
