package actions_test

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/getlantern/geneva/v2/actions"
	"github.com/getlantern/geneva/v2/common"
	"github.com/getlantern/geneva/v2/internal/scanner"
	"github.com/getlantern/geneva/v2/internal/testpackets"
)

func parseAction(t *testing.T, s string) actions.Action {
	t.Helper()

	a, err := actions.ParseAction(scanner.NewScanner(s))
	if err != nil {
		t.Fatalf("ParseAction(%q) got an error: %v", s, err)
	}

	return a
}

func TestSendAction(t *testing.T) {
	pkt := common.NewPacket(testpackets.Ping())

	a := actions.SendAction{}
	result, err := a.Apply(pkt)
	if err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}

	if len(result) != 1 {
		t.Fatalf("expected 1 packet, got %d", len(result))
	}

	if result[0] != pkt {
		t.Errorf("returned packet reference is different than the passed-in packet")
	}

	if diff := cmp.Diff(testpackets.Ping(), result[0].Data()); diff != "" {
		t.Fatalf("returned packet is different than the passed-in packet (-want +got):\n%s", diff)
	}
}

func TestDropAction(t *testing.T) {
	pkt := common.NewPacket(testpackets.Ping())

	a := actions.DropAction{}
	result, err := a.Apply(pkt)
	if err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}

	if len(result) != 0 {
		t.Fatalf("drop action should never return anything")
	}
}

func TestSimpleDuplicateAction(t *testing.T) {
	pkt := common.NewPacket(testpackets.Ping())

	a := parseAction(t, "duplicate(send,send)")

	result, err := a.Apply(pkt)
	if err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}

	if len(result) != 2 {
		t.Fatalf("expected 2 packets, got %d", len(result))
	}

	if !result[0].Equal(result[1]) {
		t.Fatalf("duplicated packets differ")
	}

	result[1].Data()[8] = 1
	if result[0].Data()[8] != 64 {
		t.Fatalf("duplicated packets share a buffer")
	}
}

func TestDuplicateActionDrop(t *testing.T) {
	pkt := common.NewPacket(testpackets.Ping())

	a := parseAction(t, "duplicate(send,drop)")

	result, err := a.Apply(pkt)
	if err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}

	if len(result) != 1 {
		t.Fatalf("expected 1 packet, got %d", len(result))
	}
}

func TestDuplicateActionBranchesAreIndependent(t *testing.T) {
	pkt := common.NewPacket(testpackets.SSH())

	a := parseAction(t, "duplicate(tamper{IP:ttl:replace:1},)")

	result, err := a.Apply(pkt)
	if err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}

	if len(result) != 2 {
		t.Fatalf("expected 2 packets, got %d", len(result))
	}

	if ttl := result[0].Data()[8]; ttl != 1 {
		t.Fatalf("left branch: expected TTL 1, got %d", ttl)
	}

	if diff := cmp.Diff(testpackets.SSH(), result[1].Data()); diff != "" {
		t.Fatalf("right branch was modified (-want +got):\n%s", diff)
	}
}

func TestNewDuplicateActionDefaults(t *testing.T) {
	a := actions.NewDuplicateAction(nil, actions.DefaultDropAction)
	if a.String() != "duplicate(,drop)" {
		t.Fatalf(`got "%s"`, a)
	}
}

func TestActionStrings(t *testing.T) {
	tests := []struct {
		rule string
		want string
	}{
		{"drop", "drop"},
		{"send", ""},
		{"duplicate", "duplicate"},
		{"duplicate(,)", "duplicate"},
		{"duplicate(send,send)", "duplicate"},
		{"duplicate(drop,)", "duplicate(drop,)"},
		{"duplicate(,drop)", "duplicate(,drop)"},
		{"duplicate( drop , )", "duplicate(drop,)"},
		{"duplicate(duplicate,drop)", "duplicate(duplicate,drop)"},
		{"duplicate(duplicate(drop,),)", "duplicate(duplicate(drop,),)"},
		{"fragment{tcp:8:False}", "fragment{tcp:8:False}"},
		{"fragment{tcp:8:false:0}", "fragment{tcp:8:False}"},
		{"fragment{IP:10:true}", "fragment{IP:10:True}"},
		{"fragment{TCP:-1:True}(drop,)", "fragment{TCP:-1:True}(drop,)"},
		{"fragment{IP:2:True:4}", "fragment{IP:2:True:4}"},
		{"fragment{IP:10:true}(duplicate(,),)", "fragment{IP:10:True}(duplicate,)"},
		{"fragment{tcp:8:True}(,tamper{TCP:flags:replace:R})", "fragment{tcp:8:True}(,tamper{TCP:flags:replace:R})"},
		{"tamper{TCP:flags:replace:S}", "tamper{TCP:flags:replace:S}"},
		{"tamper{TCP:flags:replace:S}(,)", "tamper{TCP:flags:replace:S}"},
		{"tamper{TCP:flags:replace:S}(drop)", "tamper{TCP:flags:replace:S}(drop,)"},
		{"tamper{TCP:seq:corrupt}(duplicate,)", "tamper{TCP:seq:corrupt}(duplicate,)"},
		{"tamper{TCP:options-wscale:replace:}", "tamper{TCP:options-wscale:replace:}"},
		{"tamper{IP:ttl:add:10}", "tamper{IP:ttl:add:10}"},
		{"tamper{TCP:load:replace:GET / HTTP/1.1}", "tamper{TCP:load:replace:GET / HTTP/1.1}"},
	}
	for _, tc := range tests {
		t.Run(fmt.Sprintf(`"%s"`, tc.rule), func(t *testing.T) {
			a := parseAction(t, tc.rule)
			if a.String() != tc.want {
				t.Fatalf(`String(): expected "%s", got "%s"`, tc.want, a)
			}

			// the canonical form must parse back to itself
			if again := parseAction(t, tc.want+"-|"); tc.want != "" && again.String() != tc.want {
				t.Fatalf(`round trip: expected "%s", got "%s"`, tc.want, again)
			}
		})
	}
}

func TestParseActionFailure(t *testing.T) {
	tests := []string{
		"",
		"bogus",
		"duplicate(drop",
		"duplicate(drop)",
		"duplicate(drop,drop",
		"duplicate(bogus,)",
		"fragment{tcp:8}",
		"fragment{tcp:x:True}",
		"fragment{tcp:8:maybe}",
		"fragment{udp:8:True}",
		"fragment{tcp:8:True:x}",
		"fragment{tcp:8:True:-1}",
		"fragment{tcp:8:True:1:2}",
		"fragment{tcp:8:True",
		"fragment{tcp:8:True}(drop,",
		"tamper{TCP:flags:replace}",
		"tamper{TCP:seq:corrupt:5}",
		"tamper{TCP:load:add:1}",
		"tamper{TCP:flags:add:1}",
		"tamper{UDP:sport:replace:1}",
		"tamper{TCP:bogus:replace:1}",
		"tamper{TCP:seq:bogus:1}",
		"tamper{TCP:seq:replace:x}",
		"tamper{TCP:seq}",
		"tamper{TCP:seq:replace:1",
		"tamper{TCP:seq:replace:1}(drop",
	}
	for _, tc := range tests {
		t.Run(fmt.Sprintf(`"%s"`, tc), func(t *testing.T) {
			if _, err := actions.ParseAction(scanner.NewScanner(tc)); err == nil {
				t.Fatalf("ParseAction() did not return an error when it should have")
			}
		})
	}
}

func TestParseActionErrorKinds(t *testing.T) {
	tests := []struct {
		rule   string
		syntax bool
	}{
		{"fragment{tcp:8}", true},
		{"duplicate(drop", true},
		{"tamper{TCP:seq}", true},
		{"fragment{udp:8:True}", false},
		{"tamper{TCP:seq:bogus:1}", false},
		{"tamper{TCP:bogus:replace:1}", false},
	}
	for _, tc := range tests {
		t.Run(tc.rule, func(t *testing.T) {
			_, err := actions.ParseAction(scanner.NewScanner(tc.rule))

			var (
				se *common.SyntaxError
				pe *common.ParseError
			)

			if tc.syntax && !errors.As(err, &se) {
				t.Fatalf("expected a SyntaxError, got %v", err)
			}

			if !tc.syntax && !errors.As(err, &pe) {
				t.Fatalf("expected a ParseError, got %v", err)
			}
		})
	}
}

func TestParseActionUnterminated(t *testing.T) {
	for _, rule := range []string{"fragment{tcp:8:True", "tamper{TCP:seq:corrupt"} {
		_, err := actions.ParseAction(scanner.NewScanner(rule))

		var se *common.SyntaxError
		if !errors.As(err, &se) {
			t.Fatalf("%s: expected a SyntaxError, got %v", rule, err)
		}

		if !strings.Contains(se.Msg, io.ErrUnexpectedEOF.Error()) {
			t.Fatalf("%s: unexpected message %q", rule, se.Msg)
		}
	}
}

func TestParseActionTree(t *testing.T) {
	tests := []struct {
		rule string
		want string
	}{
		{"[TCP:flags:SA]-drop-|", "[TCP:flags:SA]-drop-|"},
		{"[TCP:flags:S]--|", "[TCP:flags:S]--|"},
		{"[TCP:flags:S]-send-|", "[TCP:flags:S]--|"},
		{"[TCP:flags:S]-duplicate-|", "[TCP:flags:S]-duplicate-|"},
		{"[TCP:flags:S]- duplicate(drop, ) -|", "[TCP:flags:S]-duplicate(drop,)-|"},
		{"[IP:ttl:64:2]-tamper{IP:ttl:add:1}(drop,)-|", "[IP:ttl:64:2]-tamper{IP:ttl:add:1}(drop,)-|"},
	}
	for _, tc := range tests {
		t.Run(tc.rule, func(t *testing.T) {
			at, err := actions.ParseActionTree(scanner.NewScanner(tc.rule))
			if err != nil {
				t.Fatalf("ParseActionTree() got an error: %v", err)
			}

			if at.String() != tc.want {
				t.Fatalf(`expected "%s", got "%s"`, tc.want, at)
			}
		})
	}
}

func TestParseActionTreeFailure(t *testing.T) {
	tests := []string{
		"[TCP:flags:S]-drop",
		"[TCP:flags:S]drop-|",
		"[TCP:flags:S]-drop-",
		"[TCP:flags:S]-|",
		"[TCP:flags:S]-bogus-|",
		"-drop-|",
	}
	for _, tc := range tests {
		t.Run(tc, func(t *testing.T) {
			if _, err := actions.ParseActionTree(scanner.NewScanner(tc)); err == nil {
				t.Fatalf("ParseActionTree() did not return an error when it should have")
			}
		})
	}
}

func TestActionTreeApply(t *testing.T) {
	at, err := actions.ParseActionTree(scanner.NewScanner("[TCP:flags:PA]-duplicate(,drop)-|"))
	if err != nil {
		t.Fatalf("ParseActionTree() got an error: %v", err)
	}

	pkt := common.NewPacket(testpackets.SSH())

	matched, err := at.Matches(pkt)
	if err != nil || !matched {
		t.Fatalf("Matches(): expected a match, got %v, %v", matched, err)
	}

	result, err := at.Apply(pkt)
	if err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}

	if len(result) != 1 || !result[0].Equal(common.NewPacket(testpackets.SSH())) {
		t.Fatalf("expected the original packet back, got %d packets", len(result))
	}
}

func ExampleParseAction() {
	a, _ := actions.ParseAction(scanner.NewScanner("duplicate(send,fragment{tcp:8:false}(,))"))

	fmt.Println(a)
	// Output: duplicate(,fragment{tcp:8:False})
}
