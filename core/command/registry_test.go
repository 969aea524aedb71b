package command

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/m3rciful/cmdbot/core/chat"
)

func noop(context.Context, chat.Message, []string) error { return nil }

func TestParse(t *testing.T) {
	tests := []struct {
		body  string
		token string
		args  []string
	}{
		{"!Ping hello", "!ping", []string{"hello"}},
		{"!ping hello", "!ping", []string{"hello"}},
		{"  !REMIND   5min  coffee ", "!remind", []string{"5min", "coffee"}},
		{"!help", "!help", []string{}},
		{"", "", nil},
		{"   ", "", nil},
	}
	for _, tt := range tests {
		token, args := Parse(tt.body)
		if token != tt.token {
			t.Fatalf("Parse(%q) token = %q, want %q", tt.body, token, tt.token)
		}
		if len(args) != len(tt.args) || (len(args) > 0 && !reflect.DeepEqual(args, tt.args)) {
			t.Fatalf("Parse(%q) args = %q, want %q", tt.body, args, tt.args)
		}
	}
}

func TestResolveIsCaseInsensitiveOnFirstToken(t *testing.T) {
	reg := NewRegistry("")
	if err := reg.Register(Descriptor{Token: "!ping", Description: "pong", Handler: HandlerFunc(noop)}); err != nil {
		t.Fatalf("register: %v", err)
	}

	upper, upperArgs, ok := reg.Resolve("!Ping hello")
	if !ok {
		t.Fatalf("expected !Ping to resolve")
	}
	lower, lowerArgs, ok := reg.Resolve("!ping hello")
	if !ok {
		t.Fatalf("expected !ping to resolve")
	}
	if upper.Token != lower.Token {
		t.Fatalf("tokens differ: %q vs %q", upper.Token, lower.Token)
	}
	if !reflect.DeepEqual(upperArgs, []string{"hello"}) || !reflect.DeepEqual(lowerArgs, []string{"hello"}) {
		t.Fatalf("unexpected args %q / %q", upperArgs, lowerArgs)
	}

	// Args keep their case.
	_, args, _ := reg.Resolve("!PING Hello World")
	if !reflect.DeepEqual(args, []string{"Hello", "World"}) {
		t.Fatalf("args = %q", args)
	}
}

func TestResolveUnknownToken(t *testing.T) {
	reg := NewRegistry("!")
	if _, _, ok := reg.Resolve("hello there"); ok {
		t.Fatalf("plain text should not resolve")
	}
	if _, _, ok := reg.Resolve("!nope"); ok {
		t.Fatalf("unknown command should not resolve")
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	reg := NewRegistry("!")
	first := Descriptor{Token: "!help", Description: "first", Handler: HandlerFunc(noop)}
	second := Descriptor{Token: "!HELP", Description: "second", Handler: HandlerFunc(noop)}

	if err := reg.Register(first); err != nil {
		t.Fatalf("register first: %v", err)
	}
	err := reg.Register(second)
	if !errors.Is(err, ErrDuplicateCommand) {
		t.Fatalf("expected ErrDuplicateCommand, got %v", err)
	}
	d, _ := reg.Lookup("!help")
	if d.Description != "first" {
		t.Fatalf("first registration should win, got %q", d.Description)
	}
}

func TestRegisterAliases(t *testing.T) {
	reg := NewRegistry("!")
	err := reg.Register(Descriptor{
		Token:       "!load-fund",
		Aliases:     []string{"!load_fund", "!LOAD-FUND"},
		Description: "load",
		Handler:     HandlerFunc(noop),
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	d, ok := reg.Lookup("!Load_Fund")
	if !ok || d.Token != "!load-fund" {
		t.Fatalf("alias lookup = %+v, %v", d, ok)
	}
	if reg.Len() != 1 {
		t.Fatalf("aliases must not count as commands, len=%d", reg.Len())
	}

	err = reg.Register(Descriptor{Token: "!load_fund", Description: "other", Handler: HandlerFunc(noop)})
	if !errors.Is(err, ErrDuplicateCommand) {
		t.Fatalf("token colliding with alias: got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	reg := NewRegistry("!")
	cases := []Descriptor{
		{Token: "", Description: "x", Handler: HandlerFunc(noop)},
		{Token: "!x", Description: "", Handler: HandlerFunc(noop)},
		{Token: "!x", Description: "x"},
		{Token: "x", Description: "x", Handler: HandlerFunc(noop)},
		{Token: "!", Description: "x", Handler: HandlerFunc(noop)},
		{Token: "!x", Description: "x", Aliases: []string{"y"}, Handler: HandlerFunc(noop)},
	}
	for i, d := range cases {
		if err := reg.Register(d); !errors.Is(err, ErrInvalidCommand) {
			t.Fatalf("case %d: expected ErrInvalidCommand, got %v", i, err)
		}
	}
	if reg.Len() != 0 {
		t.Fatalf("invalid descriptors must not be stored")
	}
}

func TestListFiltersHiddenAndAdmin(t *testing.T) {
	reg := NewRegistry("!")
	err := reg.RegisterAll(
		Descriptor{Token: "!zeta", Description: "z", Handler: HandlerFunc(noop)},
		Descriptor{Token: "!alpha", Description: "a", Handler: HandlerFunc(noop)},
		Descriptor{Token: "!secret", Description: "s", Hidden: true, Handler: HandlerFunc(noop)},
		Descriptor{Token: "!admin", Description: "a", AdminOnly: true, Handler: HandlerFunc(noop)},
	)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	visible := reg.List(true)
	if len(visible) != 2 || visible[0].Token != "!alpha" || visible[1].Token != "!zeta" {
		t.Fatalf("visible = %+v", visible)
	}
	if all := reg.List(false); len(all) != 4 {
		t.Fatalf("all = %d, want 4", len(all))
	}
}

func TestRegisterAllJoinsErrors(t *testing.T) {
	reg := NewRegistry("!")
	err := reg.RegisterAll(
		Descriptor{Token: "!a", Description: "a", Handler: HandlerFunc(noop)},
		Descriptor{Token: "!a", Description: "a2", Handler: HandlerFunc(noop)},
		Descriptor{Token: "b", Description: "b", Handler: HandlerFunc(noop)},
	)
	if !errors.Is(err, ErrDuplicateCommand) || !errors.Is(err, ErrInvalidCommand) {
		t.Fatalf("expected both errors joined, got %v", err)
	}
	if reg.Len() != 1 {
		t.Fatalf("len = %d, want 1", reg.Len())
	}
}
