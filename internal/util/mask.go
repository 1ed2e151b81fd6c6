// Package util agrupa helpers chicos sin hogar mejor.
package util

import "strings"

// MaskAddress enmascara un destino de despacho para logs: los emails
// conservan primera letra de usuario y dominio; cualquier otro identificador
// conserva los extremos. Nunca loguear destinos completos.
func MaskAddress(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	i := strings.IndexByte(s, '@')
	if i <= 0 {
		if len(s) <= 4 {
			return "***"
		}
		return s[:2] + "…" + s[len(s)-2:]
	}
	user, dom := s[:i], s[i+1:]
	if len(user) > 1 {
		user = user[:1] + "…"
	}
	if j := strings.IndexByte(dom, '.'); j > 1 {
		dom = dom[:1] + "…" + dom[j:]
	}
	return user + "@" + dom
}
