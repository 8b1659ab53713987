package browser

import (
	"encoding/json"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// State is a serializable capture of one browsing context: cookies plus
// localStorage and sessionStorage. It round-trips through the session
// store so a logged-in portal session survives restarts.
type State struct {
	Cookies        []*proto.NetworkCookieParam `json:"cookies"`
	LocalStorage   map[string]string           `json:"localStorage"`
	SessionStorage map[string]string           `json:"sessionStorage"`
	CapturedFrom   string                      `json:"capturedFrom,omitempty"`
}

// CaptureState snapshots the page's cookies and web storage.
func CaptureState(page *rod.Page) (*State, error) {
	cookiesRes, err := proto.NetworkGetCookies{}.Call(page)
	if err != nil {
		return nil, fmt.Errorf("get cookies: %w", err)
	}

	params := make([]*proto.NetworkCookieParam, 0, len(cookiesRes.Cookies))
	for _, c := range cookiesRes.Cookies {
		params = append(params, &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: c.SameSite,
			Priority: c.Priority,
		})
	}

	info, _ := page.Info()
	st := &State{
		Cookies:        params,
		LocalStorage:   snapshotStorage(page, "localStorage"),
		SessionStorage: snapshotStorage(page, "sessionStorage"),
	}
	if info != nil {
		st.CapturedFrom = info.URL
	}
	return st, nil
}

// RestoreCookies installs the captured cookies into the page's context.
// Cookies carry their own domains so this works before any navigation,
// which is the point: the SPA must boot already authenticated.
func (s *State) RestoreCookies(page *rod.Page) error {
	if len(s.Cookies) == 0 {
		return nil
	}
	return page.SetCookies(s.Cookies)
}

// RestoreStorage injects the captured web storage into the current origin.
// The page must already be on the target origin; storage is origin-scoped.
func (s *State) RestoreStorage(page *rod.Page) {
	restoreStorage(page, s.LocalStorage, s.SessionStorage)
}

// Marshal encodes the state as the opaque blob the session store keeps.
func (s *State) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

// UnmarshalState decodes a stored blob.
func UnmarshalState(data []byte) (*State, error) {
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode session state: %w", err)
	}
	if st.LocalStorage == nil {
		st.LocalStorage = map[string]string{}
	}
	if st.SessionStorage == nil {
		st.SessionStorage = map[string]string{}
	}
	return &st, nil
}

func snapshotStorage(page *rod.Page, store string) map[string]string {
	jsFunc := fmt.Sprintf(`() => {
		try {
			const out = {};
			for (const key of Object.keys(%s)) {
				out[key] = %s.getItem(key);
			}
			return JSON.stringify(out);
		} catch (e) {
			return "{}";
		}
	}`, store, store)

	res, err := page.Evaluate(&rod.EvalOptions{
		JS:           jsFunc,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil || res == nil || res.Value.Nil() {
		return map[string]string{}
	}
	out := map[string]string{}
	if err := json.Unmarshal([]byte(res.Value.String()), &out); err != nil {
		return map[string]string{}
	}
	return out
}

func restoreStorage(page *rod.Page, local, session map[string]string) {
	localJSON, _ := json.Marshal(local)
	sessionJSON, _ := json.Marshal(session)
	_, _ = page.Evaluate(&rod.EvalOptions{
		JS: `
		(local, session) => {
			try {
				const l = JSON.parse(local || "{}");
				Object.entries(l).forEach(([k, v]) => localStorage.setItem(k, v));
			} catch (e) {}
			try {
				const s = JSON.parse(session || "{}");
				Object.entries(s).forEach(([k, v]) => sessionStorage.setItem(k, v));
			} catch (e) {}
		}
		`,
		JSArgs:       []interface{}{string(localJSON), string(sessionJSON)},
		ByValue:      true,
		AwaitPromise: true,
		UserGesture:  true,
	})
}
