package backpack

import "testing"

func TestSigningStringSortsParams(t *testing.T) {
	got := signingString("orderExecute", map[string]string{
		"symbol":   "SOL_USDC_PERP",
		"clientId": "777",
		"side":     "Bid",
		"postOnly": "true",
	}, "1700000000000", "5000")
	want := "instruction=orderExecute&clientId=777&postOnly=true&side=Bid&symbol=SOL_USDC_PERP&timestamp=1700000000000&window=5000"
	if got != want {
		t.Errorf("signing string = %s\nwant            %s", got, want)
	}
}

func TestSigningStringNoParams(t *testing.T) {
	got := signingString("collateralQuery", nil, "1700000000000", "5000")
	want := "instruction=collateralQuery&timestamp=1700000000000&window=5000"
	if got != want {
		t.Errorf("signing string = %s, want %s", got, want)
	}
}

func TestFlattenBodyRendersTypes(t *testing.T) {
	params := make(map[string]string)
	body := []byte(`{"clientId":777,"postOnly":true,"price":"148.5","quantity":"2"}`)
	if err := flattenBody(body, params); err != nil {
		t.Fatalf("flattenBody: %v", err)
	}
	want := map[string]string{
		"clientId": "777",
		"postOnly": "true",
		"price":    "148.5",
		"quantity": "2",
	}
	for k, w := range want {
		if params[k] != w {
			t.Errorf("params[%q] = %q, want %q", k, params[k], w)
		}
	}
}

func TestInstructionMapping(t *testing.T) {
	cases := []struct {
		method, path, want string
	}{
		{"POST", "/order", "orderExecute"},
		{"DELETE", "/order", "orderCancel"},
		{"DELETE", "/orders", "orderCancelAll"},
		{"GET", "/orders", "orderQueryAll"},
		{"GET", "/position", "positionQuery"},
		{"GET", "/capital/collateral", "collateralQuery"},
		{"GET", "/depth", ""},
		{"GET", "/markets", ""},
	}
	for _, tc := range cases {
		if got := instructionFor(tc.method, tc.path); got != tc.want {
			t.Errorf("instructionFor(%s %s) = %q, want %q", tc.method, tc.path, got, tc.want)
		}
	}
}
