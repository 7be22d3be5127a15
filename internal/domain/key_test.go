package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

const sampleKeySet = `{"keys":[
 {"kty":"EC","crv":"P-256","x":"f83OJ3D2xF1Bg8vub9tLe1gHMzV76e8Tus9uPHvRVEU","y":"x_FEzRu9m36HLN_tue659LNpXW6pCyStikYjKIWI5a0","kid":"ec-1","use":"sig"},
 {"kty":"OKP","crv":"Ed25519","x":"11qYAYKxCrfVS_7TyWQHOg7hcvPapiMlrwIaaPcHURo","alg":"EdDSA"}
]}`

func TestParseKeySet_DispatchesOnKty(t *testing.T) {
	ks, err := ParseKeySet([]byte(sampleKeySet))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(ks.Keys) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(ks.Keys))
	}
	ec, ok := ks.Keys[0].(*ECKey)
	if !ok {
		t.Fatalf("expected *ECKey, got %T", ks.Keys[0])
	}
	if ec.Kid != "ec-1" || ec.Crv != CurveP256 || ec.Y == "" {
		t.Fatalf("unexpected ec key: %+v", ec)
	}
	okp, ok := ks.Keys[1].(*OKPKey)
	if !ok {
		t.Fatalf("expected *OKPKey, got %T", ks.Keys[1])
	}
	if okp.Alg != AlgEdDSA || okp.Kid != "" {
		t.Fatalf("unexpected okp key: %+v", okp)
	}
}

func TestParseKeySet_UnknownKtyIsInvalidFormat(t *testing.T) {
	cases := []string{
		`{"keys":[{"kty":"RSA","n":"AQAB","e":"AQAB"}]}`,
		`{"keys":[{"crv":"P-256","x":"a","y":"b"}]}`,
		`{"keys":"nope"}`,
		`not json`,
		``,
		`{"keys":[{"KTY":"EC","crv":"P-256","x":"a","y":"b"}]}`,
		`{"keys":[{"kty":"OKP","crv":"Ed25519","x":7}]}`,
		`{"keys":[null]}`,
	}
	for _, input := range cases {
		if _, err := ParseKeySet([]byte(input)); !errors.Is(err, ErrInvalidFormat) {
			t.Fatalf("input %q: expected ErrInvalidFormat, got %v", input, err)
		}
	}
}

func TestParseKeySet_KeepsForeignCurves(t *testing.T) {
	ks, err := ParseKeySet([]byte(`{"keys":[{"kty":"EC","crv":"P-384","x":"a","y":"b","kid":"k"}]}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ks.Keys[0].Curve() != "P-384" {
		t.Fatalf("expected curve preserved, got %q", ks.Keys[0].Curve())
	}
}

func TestParseKeySet_MembersMatchExactly(t *testing.T) {
	ks, err := ParseKeySet([]byte(`{"Keys":[{"kty":"OKP","crv":"Ed25519","x":"a"}]}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(ks.Keys) != 0 {
		t.Fatalf("Keys must not stand in for keys, got %d keys", len(ks.Keys))
	}

	ks, err = ParseKeySet([]byte(`{"keys":[{"kty":"EC","crv":"P-256","x":"real-x","X":"shadow","y":"real-y","KID":"shadow"}]}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	ec := ks.Keys[0].(*ECKey)
	if ec.X != "real-x" || ec.Y != "real-y" || ec.Kid != "" {
		t.Fatalf("case-folded members leaked into key: %+v", ec)
	}
}

func TestStringMember(t *testing.T) {
	obj, err := DecodeObject([]byte(`{"a":"x","b":null,"c":1}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v, ok, err := StringMember(obj, "a"); err != nil || !ok || v != "x" {
		t.Fatalf("a: %q %v %v", v, ok, err)
	}
	if _, ok, err := StringMember(obj, "b"); err != nil || ok {
		t.Fatalf("null member must read as absent: %v %v", ok, err)
	}
	if _, ok, err := StringMember(obj, "A"); err != nil || ok {
		t.Fatalf("lookup must be case-sensitive: %v %v", ok, err)
	}
	if _, _, err := StringMember(obj, "c"); !errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("non-string member: expected ErrInvalidFormat, got %v", err)
	}
	if _, err := DecodeObject([]byte(`[]`)); !errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("array: expected ErrInvalidFormat, got %v", err)
	}
}

func TestKeySet_MarshalRoundTrip(t *testing.T) {
	ks, err := ParseKeySet([]byte(sampleKeySet))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	out, err := json.Marshal(ks)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(out), `"kty":"EC"`) || !strings.Contains(string(out), `"kty":"OKP"`) {
		t.Fatalf("kty missing from output: %s", out)
	}
	again, err := ParseKeySet(out)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if *again.Keys[0].(*ECKey) != *ks.Keys[0].(*ECKey) {
		t.Fatalf("ec key changed across round trip")
	}
	if *again.Keys[1].(*OKPKey) != *ks.Keys[1].(*OKPKey) {
		t.Fatalf("okp key changed across round trip")
	}

	empty, err := json.Marshal(KeySet{})
	if err != nil {
		t.Fatalf("marshal empty: %v", err)
	}
	if string(empty) != `{"keys":[]}` {
		t.Fatalf("unexpected empty set encoding: %s", empty)
	}
}

func TestValidateKeySet(t *testing.T) {
	valid, err := ParseKeySet([]byte(sampleKeySet))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := ValidateKeySet(valid); err != nil {
		t.Fatalf("expected valid key set: %v", err)
	}

	cases := []struct {
		name string
		ks   KeySet
		want error
	}{
		{"empty", KeySet{}, ErrInvalidFormat},
		{"ec wrong curve", KeySet{Keys: []Key{&ECKey{Crv: "P-384", X: "a", Y: "b"}}}, ErrUnsupportedKey},
		{"ec missing y", KeySet{Keys: []Key{&ECKey{Crv: CurveP256, X: "a"}}}, ErrInvalidFormat},
		{"okp wrong curve", KeySet{Keys: []Key{&OKPKey{Crv: "X25519", X: "a"}}}, ErrUnsupportedKey},
		{"okp missing x", KeySet{Keys: []Key{&OKPKey{Crv: CurveEd25519}}}, ErrInvalidFormat},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := ValidateKeySet(tc.ks); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestErrorCode(t *testing.T) {
	if got := ErrorCode(nil); got != "" {
		t.Fatalf("nil error code: %q", got)
	}
	wrapped := errors.Join(errors.New("context"), ErrNetwork)
	if got := ErrorCode(wrapped); got != "NETWORK_ERROR" {
		t.Fatalf("expected NETWORK_ERROR, got %q", got)
	}
	if got := ErrorCode(errors.New("boom")); got != "INTERNAL" {
		t.Fatalf("expected INTERNAL, got %q", got)
	}
}
