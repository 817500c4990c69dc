package enums

import "testing"

func TestParseOrderStatus(t *testing.T) {
	status, err := ParseOrderStatus("pending_confirmation")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != OrderStatusPendingConfirmation {
		t.Fatalf("unexpected status: %q", status)
	}

	if _, err := ParseOrderStatus("shipped"); err == nil {
		t.Fatal("expected unknown status to be rejected")
	}
	if _, err := ParseOrderStatus(""); err == nil {
		t.Fatal("expected empty status to be rejected")
	}
}

func TestOrderStatusIsTerminal(t *testing.T) {
	for _, status := range []OrderStatus{OrderStatusCompleted, OrderStatusCancelled, OrderStatusRefunded, OrderStatusExpired} {
		if !status.IsTerminal() {
			t.Fatalf("expected %q to be terminal", status)
		}
	}
	if OrderStatusPendingConfirmation.IsTerminal() {
		t.Fatal("pending_confirmation must not be terminal")
	}
}

func TestParsePartyRole(t *testing.T) {
	role, err := ParsePartyRole("seller")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if role != PartyRoleSeller {
		t.Fatalf("unexpected role: %q", role)
	}

	if _, err := ParsePartyRole("courier"); err == nil {
		t.Fatal("expected unknown role to be rejected")
	}
}
