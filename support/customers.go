package support

import "sync"

// Customer is a CRM record.
type Customer struct {
	ID             string  `json:"customer_id"`
	Name           string  `json:"name"`
	Tier           string  `json:"tier"`
	JoinDate       string  `json:"join_date"`
	TotalPurchases int     `json:"total_purchases"`
	LifetimeValue  float64 `json:"lifetime_value"`
}

// CustomerDirectory is a process-local CRM lookup. Unknown customers are
// materialized with placeholder data on first access, mirroring a CRM that
// auto-provisions records.
type CustomerDirectory struct {
	mu        sync.Mutex
	customers map[string]Customer
}

// NewCustomerDirectory creates an empty directory.
func NewCustomerDirectory() *CustomerDirectory {
	return &CustomerDirectory{customers: make(map[string]Customer)}
}

// Get returns the record for id, creating a placeholder when absent.
func (d *CustomerDirectory) Get(id string) Customer {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.customers[id]; ok {
		return c
	}
	suffix := id
	if len(suffix) > 4 {
		suffix = suffix[len(suffix)-4:]
	}
	c := Customer{
		ID:             id,
		Name:           "Customer " + suffix,
		Tier:           "premium",
		JoinDate:       "2023-01-15",
		TotalPurchases: 12,
		LifetimeValue:  1250.50,
	}
	d.customers[id] = c
	return c
}

// Put stores or replaces a customer record.
func (d *CustomerDirectory) Put(c Customer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.customers[c.ID] = c
}
