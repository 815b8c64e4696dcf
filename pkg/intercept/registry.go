// File: pkg/intercept/registry.go
package intercept

import (
	"sort"
	"sync"
)

// Registry maps exact request URLs to injected responses.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Response
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Response)}
}

// Inject stores resp for url, replacing any previous override.
func (r *Registry) Inject(url string, resp Response) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[url] = resp.Clone()
}

// Lookup returns a copy of the override for url.
func (r *Registry) Lookup(url string) (Response, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	resp, ok := r.entries[url]
	if !ok {
		return Response{}, false
	}
	return resp.Clone(), true
}

// Remove drops the override for url and reports whether one existed.
func (r *Registry) Remove(url string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[url]
	delete(r.entries, url)
	return ok
}

func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]Response)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// URLs returns the injected URLs in sorted order.
func (r *Registry) URLs() []string {
	r.mu.RLock()
	urls := make([]string, 0, len(r.entries))
	for u := range r.entries {
		urls = append(urls, u)
	}
	r.mu.RUnlock()
	sort.Strings(urls)
	return urls
}
