package overdue

import (
	"testing"
	"time"

	invoicedomain "github.com/Nikjeremic/uptiomio/internal/invoice/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func inv(id int64, email string, amount float64, created time.Time) invoicedomain.Invoice {
	return invoicedomain.Invoice{
		ID:        snowflake.ID(id),
		Client:    invoicedomain.ClientSnapshot{Name: email, Email: email},
		Amount:    amount,
		CreatedAt: created,
	}
}

func TestGroupKeepsClientsWithSeveralInvoices(t *testing.T) {
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	invoices := []invoicedomain.Invoice{
		inv(3, "a@acme.test", 30.10, base.Add(2*time.Hour)),
		inv(1, "a@acme.test", 10.10, base),
		inv(4, "b@beta.test", 99, base),
		inv(2, "a@acme.test", 20.10, base.Add(time.Hour)),
	}

	got := Group(invoices, 2)

	want := []ClientGroup{{
		ClientEmail:   "a@acme.test",
		ClientName:    "a@acme.test",
		InvoiceCount:  3,
		TotalAmount:   60.30,
		OldestInvoice: base,
		Invoices:      []invoicedomain.Invoice{invoices[1], invoices[3], invoices[0]},
	}}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 0.001)); diff != "" {
		t.Fatalf("Group mismatch (-want +got):\n%s", diff)
	}
}

func TestGroupMatchesEmailExactly(t *testing.T) {
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	invoices := []invoicedomain.Invoice{
		inv(1, "a@acme.test", 1, base),
		inv(2, "A@acme.test", 1, base),
		inv(3, "a@acme.test ", 1, base),
	}
	if got := Group(invoices, 2); len(got) != 0 {
		t.Fatalf("expected no groups, got %d", len(got))
	}
}

func TestGroupOrdersByEmail(t *testing.T) {
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	invoices := []invoicedomain.Invoice{
		inv(1, "z@z.test", 1, base),
		inv(2, "b@b.test", 1, base),
		inv(3, "z@z.test", 1, base),
		inv(4, "b@b.test", 1, base),
	}
	got := Group(invoices, 2)
	emails := make([]string, 0, len(got))
	for _, g := range got {
		emails = append(emails, g.ClientEmail)
	}
	if diff := cmp.Diff([]string{"b@b.test", "z@z.test"}, emails); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
}
