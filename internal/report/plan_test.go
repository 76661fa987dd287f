package report

import (
	"errors"
	"testing"
)

func TestAssemblyPlanOrder(t *testing.T) {
	t.Parallel()

	body := []byte("body")
	tests := []struct {
		name string
		plan *AssemblyPlan
		want []SectionName
	}{
		{
			name: "body only",
			plan: NewAssemblyPlan(body),
			want: []SectionName{SectionBody},
		},
		{
			name: "body and toc",
			plan: NewAssemblyPlan(body).With(SectionTOC, []byte("toc")),
			want: []SectionName{SectionTOC, SectionBody},
		},
		{
			name: "cover and toc added out of order",
			plan: NewAssemblyPlan(body).With(SectionTOC, []byte("toc")).With(SectionCover, []byte("cover")),
			want: []SectionName{SectionCover, SectionTOC, SectionBody},
		},
		{
			name: "all sections",
			plan: NewAssemblyPlan(body).
				With(SectionTOC, []byte("toc")).
				With(SectionHistory, []byte("history")).
				With(SectionCover, []byte("cover")),
			want: []SectionName{SectionCover, SectionHistory, SectionTOC, SectionBody},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := tt.plan.Names()
			if len(got) != len(tt.want) {
				t.Fatalf("Names() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("Names() = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestAssemblyPlanIgnoresEmptyAndBodyOverrides(t *testing.T) {
	t.Parallel()

	plan := NewAssemblyPlan([]byte("body")).
		With(SectionCover, nil).
		With(SectionBody, []byte("other")).
		With(SectionName("appendix"), []byte("x"))

	if plan.Has(SectionCover) {
		t.Fatal("empty cover should not be part of the plan")
	}
	if string(plan.Body()) != "body" {
		t.Fatalf("body replaced: %q", plan.Body())
	}
	if len(plan.Sections()) != 1 {
		t.Fatalf("expected body only, got %v", plan.Names())
	}
}

func TestResultDegraded(t *testing.T) {
	t.Parallel()

	var r Result
	if r.Degraded() {
		t.Fatal("empty result should not be degraded")
	}
	r.Degradations = append(r.Degradations, Degradation{Stage: "toc", Err: errors.New("exit 1")})
	if !r.Degraded() {
		t.Fatal("expected degraded result")
	}
	if got := r.Degradations[0].String(); got != "toc: exit 1" {
		t.Fatalf("unexpected degradation string %q", got)
	}
}
