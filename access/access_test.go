package access

import "testing"

func TestDecide(t *testing.T) {
	tests := []struct {
		name    string
		display Display
		want    Decision
	}{
		{"blur", Blur, Decision{Page: 7, Mount: true, FetchRaster: true, Blur: true, Message: "réservé"}},
		{"empty", Empty, Decision{Page: 7, Mount: true, Message: "réservé"}},
		{"hidden", Hidden, Decision{Page: 7}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := Rules{Policy: Except(7), Display: tc.display, Message: "réservé"}
			if got := r.Decide(7); got != tc.want {
				t.Fatalf("Decide(7) = %+v, want %+v", got, tc.want)
			}
			if got := r.Decide(6); !got.Accessible || !got.Mount || !got.FetchRaster {
				t.Fatalf("Decide(6) = %+v", got)
			}
		})
	}
}

func TestPolicies(t *testing.T) {
	if !AllowAll.Accessible(1000) {
		t.Fatalf("AllowAll denied a page")
	}
	free := FreePages(3)
	if !free.Accessible(3) || free.Accessible(4) || free.Accessible(0) {
		t.Fatalf("FreePages(3) wrong")
	}
	set := NewPageSet(2, 5)
	if !set.Accessible(5) || set.Accessible(3) {
		t.Fatalf("PageSet wrong")
	}
	if d := (Rules{Policy: FreePages(1)}).Decide(2); d.Message != DefaultMessage || !d.Blur {
		t.Fatalf("default rules = %+v", d)
	}
	if d := (Rules{}).Decide(9); !d.Accessible {
		t.Fatalf("zero rules must grant")
	}
}

func TestParseDisplay(t *testing.T) {
	for in, want := range map[string]Display{"": Blur, "BLUR": Blur, "empty": Empty, " hidden ": Hidden} {
		got, err := ParseDisplay(in)
		if err != nil || got != want {
			t.Fatalf("ParseDisplay(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseDisplay("sepia"); err == nil {
		t.Fatalf("expected error")
	}
}
