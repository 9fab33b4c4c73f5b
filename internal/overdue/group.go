// Package overdue sends one digest per client holding several recent
// unpaid invoices, followed by a summary for the admin.
package overdue

import (
	"sort"
	"time"

	invoicedomain "github.com/Nikjeremic/uptiomio/internal/invoice/domain"
)

type ClientGroup struct {
	ClientEmail   string
	ClientName    string
	InvoiceCount  int
	TotalAmount   float64
	OldestInvoice time.Time
	Invoices      []invoicedomain.Invoice
}

// Group buckets invoices by exact client email and keeps buckets holding at
// least minCount invoices. Groups are ordered by email, invoices inside a
// group by creation time.
func Group(invoices []invoicedomain.Invoice, minCount int) []ClientGroup {
	byEmail := make(map[string]*ClientGroup)
	for _, inv := range invoices {
		g, ok := byEmail[inv.Client.Email]
		if !ok {
			g = &ClientGroup{ClientEmail: inv.Client.Email, ClientName: inv.Client.Name}
			byEmail[inv.Client.Email] = g
		}
		g.Invoices = append(g.Invoices, inv)
	}

	groups := make([]ClientGroup, 0, len(byEmail))
	for _, g := range byEmail {
		if len(g.Invoices) < minCount {
			continue
		}
		sort.SliceStable(g.Invoices, func(i, j int) bool {
			return g.Invoices[i].CreatedAt.Before(g.Invoices[j].CreatedAt)
		})

		var total float64
		for _, inv := range g.Invoices {
			total += inv.Amount
		}
		g.InvoiceCount = len(g.Invoices)
		g.TotalAmount = invoicedomain.RoundCents(total)
		g.OldestInvoice = g.Invoices[0].CreatedAt
		if g.ClientName == "" {
			g.ClientName = g.Invoices[0].Client.Name
		}
		groups = append(groups, *g)
	}

	sort.Slice(groups, func(i, j int) bool { return groups[i].ClientEmail < groups[j].ClientEmail })
	return groups
}
