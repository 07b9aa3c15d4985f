package main

import (
	"reflect"
	"testing"
)

func TestRewriteQuickAddArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{
			name: "no args",
			in:   []string{"dcj"},
			want: []string{"dcj"},
		},
		{
			name: "quick add first token",
			in:   []string{"dcj", "+buy milk"},
			want: []string{"dcj", "warehouse", "add", "buy milk"},
		},
		{
			name: "quick add joins unquoted words",
			in:   []string{"dcj", "+buy", "oat", "milk"},
			want: []string{"dcj", "warehouse", "add", "buy oat milk"},
		},
		{
			name: "quick add after value flag",
			in:   []string{"dcj", "--api-url", "http://x/api/v1", "+idea"},
			want: []string{"dcj", "--api-url", "http://x/api/v1", "warehouse", "add", "idea"},
		},
		{
			name: "quick add after equals flag",
			in:   []string{"dcj", "--format=yaml", "+idea"},
			want: []string{"dcj", "--format=yaml", "warehouse", "add", "idea"},
		},
		{
			name: "quick add after bool flag",
			in:   []string{"dcj", "--pretty", "+idea"},
			want: []string{"dcj", "--pretty", "warehouse", "add", "idea"},
		},
		{
			name: "quick add after double dash",
			in:   []string{"dcj", "--", "+idea"},
			want: []string{"dcj", "--", "warehouse", "add", "idea"},
		},
		{
			name: "bare plus not rewritten",
			in:   []string{"dcj", "+"},
			want: []string{"dcj", "+"},
		},
		{
			name: "normal subcommand not rewritten",
			in:   []string{"dcj", "warehouse", "add", "+idea"},
			want: []string{"dcj", "warehouse", "add", "+idea"},
		},
		{
			name: "unknown command not rewritten",
			in:   []string{"dcj", "wat"},
			want: []string{"dcj", "wat"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := rewriteQuickAddArgs(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("rewriteQuickAddArgs:\n got: %#v\nwant: %#v", got, tt.want)
			}
		})
	}
}
