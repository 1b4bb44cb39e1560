// Package support provides the customer-support collaborators consumed by
// the pipeline through narrow interfaces: an in-memory knowledge base,
// ticket store and customer directory, the stock tools exposing them, and
// the default keyword→tool routing table.
package support

import (
	"sort"
	"strings"
	"sync"
)

// KnowledgeBase is a process-local article store with naive keyword search:
// a linear scan matching query words against article keys. Suitable for
// tests and demos; swap for a real retrieval index in production.
type KnowledgeBase struct {
	mu       sync.RWMutex
	articles map[string]string
}

// NewKnowledgeBase creates an empty knowledge base.
func NewKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{articles: make(map[string]string)}
}

// NewDefaultKnowledgeBase creates a knowledge base seeded with the stock
// support articles.
func NewDefaultKnowledgeBase() *KnowledgeBase {
	kb := NewKnowledgeBase()
	kb.Put("reset_password", "To reset your password: 1) Go to login page 2) Click 'Forgot Password' 3) Enter your email 4) Follow the link in your email")
	kb.Put("shipping_policy", "We offer free shipping on orders over $50. Standard shipping takes 3-5 business days. Express shipping is available for $15.")
	kb.Put("return_policy", "Items can be returned within 30 days of purchase. Item must be unused and in original packaging. Refunds processed within 5-7 business days.")
	kb.Put("billing_issue", "For billing issues: 1) Check your email for receipt 2) Verify card details 3) Contact your bank 4) If unresolved, contact our billing department at billing@company.com")
	kb.Put("technical_support", "For technical support: 1) Clear browser cache 2) Try different browser 3) Check internet connection 4) Contact support at support@company.com")
	return kb
}

// Put stores or replaces an article under key.
func (kb *KnowledgeBase) Put(key, content string) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	kb.articles[key] = content
}

// Search returns formatted articles whose key contains any query word.
// Results are sorted by key for stable output; an empty result returns a
// fallback prompt asking for more detail.
func (kb *KnowledgeBase) Search(query string) string {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	words := strings.Fields(strings.ToLower(query))
	var keys []string
	for key := range kb.articles {
		for _, word := range words {
			if strings.Contains(key, word) {
				keys = append(keys, key)
				break
			}
		}
	}
	if len(keys) == 0 {
		return "No specific information found. Please provide more details so I can assist you better."
	}
	sort.Strings(keys)

	results := make([]string, len(keys))
	for i, key := range keys {
		results[i] = "**" + titleFromKey(key) + "**: " + kb.articles[key]
	}
	return strings.Join(results, "\n\n")
}

// titleFromKey renders "reset_password" as "Reset Password".
func titleFromKey(key string) string {
	parts := strings.Split(key, "_")
	for i, p := range parts {
		if len(p) > 0 {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, " ")
}
