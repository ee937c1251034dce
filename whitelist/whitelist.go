// Package whitelist implements sender authorization against a hot-reloadable
// allowlist file.
//
// The allowlist is a JSON document:
//
//	{
//	  "allowed_emails":  ["alice@acme.com"],
//	  "allowed_domains": ["acme.com", "@partner.io"]
//	}
//
// The current whitelist is held behind an atomic pointer and replaced
// wholesale on a successful reload, so request handlers never observe a
// partially updated list. Reload decoding is strict: unknown keys reject
// the file and the previous whitelist stays in effect.
package whitelist

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/mailsage/mailsage/helpers"
)

// allowlistFile is the on-disk schema.
type allowlistFile struct {
	AllowedEmails  []string `json:"allowed_emails"`
	AllowedDomains []string `json:"allowed_domains"`
}

// Whitelist is an immutable snapshot of the allowlist.
type Whitelist struct {
	addresses map[string]struct{}
	domains   []string
}

// NewWhitelist builds a snapshot from raw address and domain lists.
// Entries are normalized (lowercased, trimmed, domains stripped of a
// leading "@") so membership checks are case-insensitive.
func NewWhitelist(emails, domains []string) *Whitelist {
	w := &Whitelist{
		addresses: make(map[string]struct{}, len(emails)),
	}
	for _, e := range emails {
		e = helpers.NormalizeAddress(e)
		if e != "" {
			w.addresses[e] = struct{}{}
		}
	}
	for _, d := range domains {
		d = strings.TrimPrefix(helpers.NormalizeAddress(d), "@")
		if d != "" {
			w.domains = append(w.domains, d)
		}
	}
	return w
}

// AddressCount returns the number of exact-match addresses.
func (w *Whitelist) AddressCount() int { return len(w.addresses) }

// DomainCount returns the number of domain suffixes.
func (w *Whitelist) DomainCount() int { return len(w.domains) }

// Contains reports whether address is allowed. The exact-match set is
// checked first; otherwise each domain matches both direct addresses
// ("user@domain") and subdomain addresses ("user@sub.domain").
func (w *Whitelist) Contains(address string) bool {
	address = helpers.NormalizeAddress(address)
	if address == "" {
		return false
	}

	if _, ok := w.addresses[address]; ok {
		return true
	}

	for _, domain := range w.domains {
		if strings.HasSuffix(address, "@"+domain) || strings.HasSuffix(address, "."+domain) {
			return true
		}
	}
	return false
}

// parseAllowlist decodes allowlist file contents. Unknown keys are rejected
// so a typo in the file cannot silently widen or narrow authorization.
func parseAllowlist(data []byte) (*Whitelist, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var f allowlistFile
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("invalid allowlist: %w", err)
	}
	// Reject trailing content after the document.
	if dec.More() {
		return nil, fmt.Errorf("invalid allowlist: trailing data after JSON document")
	}
	return NewWhitelist(f.AllowedEmails, f.AllowedDomains), nil
}

// Service owns the current whitelist snapshot.
type Service struct {
	path    string
	current atomic.Pointer[Whitelist]
}

// NewService loads the allowlist file at path. A missing or invalid file at
// startup is an error; the caller treats it as fatal.
func NewService(path string) (*Service, error) {
	s := &Service{path: path}
	wl, err := s.loadFile()
	if err != nil {
		return nil, err
	}
	s.current.Store(wl)
	return s, nil
}

// NewServiceFromLists builds a service without file backing, for tests and
// embedded use.
func NewServiceFromLists(emails, domains []string) *Service {
	s := &Service{}
	s.current.Store(NewWhitelist(emails, domains))
	return s
}

func (s *Service) loadFile() (*Whitelist, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read allowlist file '%s': %w", s.path, err)
	}
	return parseAllowlist(data)
}

// IsAuthorized reports whether address is an allowed sender.
func (s *Service) IsAuthorized(address string) bool {
	return s.current.Load().Contains(address)
}

// Current returns the active whitelist snapshot.
func (s *Service) Current() *Whitelist {
	return s.current.Load()
}

// Reload re-reads the allowlist file and swaps in the new snapshot. On any
// failure the previous snapshot stays in effect and the error is returned
// for the caller to log.
func (s *Service) Reload() (*Whitelist, error) {
	wl, err := s.loadFile()
	if err != nil {
		return nil, err
	}
	s.current.Store(wl)
	return wl, nil
}
