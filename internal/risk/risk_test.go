package risk

import "testing"

func TestClassifyEmptyIsLow(t *testing.T) {
	lvl, reasons := Classify("just say hi")
	if lvl != Low {
		t.Fatalf("expected Low, got %v (%v)", lvl, reasons)
	}
}

func TestClassifyPaymentIsCritical(t *testing.T) {
	lvl, _ := Classify("go to checkout and enter the credit card cvv")
	if lvl != Critical {
		t.Fatalf("expected Critical, got %v", lvl)
	}
}

func TestClassifyTakesMaximumMatchedLevel(t *testing.T) {
	lvl, reasons := Classify("remember my preference, then sudo rm -rf the logs")
	if lvl != Critical {
		t.Fatalf("expected Critical (max of matched levels), got %v (%v)", lvl, reasons)
	}
	if len(reasons) < 2 {
		t.Fatalf("expected multiple matched reasons, got %v", reasons)
	}
}

func TestBudgetByRiskLevel(t *testing.T) {
	cases := map[Level]int{Low: 1, Medium: 3, High: 5, Critical: 5}
	for lvl, want := range cases {
		if got := Budget(lvl); got != want {
			t.Errorf("Budget(%v) = %d, want %d", lvl, got, want)
		}
	}
}

func TestClassifyRoutePrecedenceBrowserOverTooling(t *testing.T) {
	route, _ := ClassifyRoute("install the browser extension and navigate to login")
	if route != RouteBrowser {
		t.Fatalf("expected browser to win precedence, got %v", route)
	}
}

func TestClassifyRouteToolingOverMemory(t *testing.T) {
	route, _ := ClassifyRoute("remember to npm install the deps")
	if route != RouteTooling {
		t.Fatalf("expected tooling to win over memory, got %v", route)
	}
}

func TestClassifyRouteDefaultAgent(t *testing.T) {
	route, _ := ClassifyRoute("what's the weather like today")
	if route != RouteAgent {
		t.Fatalf("expected default agent route, got %v", route)
	}
}
