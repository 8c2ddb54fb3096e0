package hypothesis

import "testing"

func TestAnalyzeModes(t *testing.T) {
	tests := []struct {
		name string
		h    Hypothesis
		want Mode
	}{
		{"standard", Hypothesis{Text: "Freelancers struggling to get paid on time by clients"}, ModeStandard},
		{"setting", Hypothesis{Text: "Beginners feeling intimidated at the gym"}, ModeContext},
		{"while doing", Hypothesis{Text: "Parents losing focus while driving with kids"}, ModeContext},
		{"transition", Hypothesis{Text: "Employed people wanting to start a business"}, ModeTransition},
		{"transition via audience", Hypothesis{Audience: "full-time engineers", Text: "looking to quit and go freelance"}, ModeTransition},
		{"verb without employment", Hypothesis{Text: "Students wanting to start a business"}, ModeStandard},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Analyze(tt.h).Mode(); got != tt.want {
				t.Errorf("Mode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTransitionWinsOverContext(t *testing.T) {
	h := Hypothesis{Text: "Office workers at work wanting to become freelancers"}
	p := Analyze(h)
	if !p.Context.Present || !p.Transition.Present {
		t.Fatalf("expected both detectors to fire, got %+v", p)
	}
	if p.Mode() != ModeTransition {
		t.Errorf("expected transition mode, got %v", p.Mode())
	}
}

func TestDetectTransitionParts(t *testing.T) {
	sig := DetectTransition(Hypothesis{Text: "Employed people wanting to start a business"})
	if sig.Origin != "Employed people" {
		t.Errorf("origin = %q", sig.Origin)
	}
	if sig.Target != "start a business" {
		t.Errorf("target = %q", sig.Target)
	}
}

func TestDetectContextStripsSetting(t *testing.T) {
	sig := DetectContext(Hypothesis{Text: "Beginners feeling intimidated at the gym"})
	if sig.Setting != "at the gym" {
		t.Errorf("setting = %q", sig.Setting)
	}
	if sig.Problem != "Beginners feeling intimidated" {
		t.Errorf("problem = %q", sig.Problem)
	}
}

func TestCustomDetector(t *testing.T) {
	saved := Detectors
	t.Cleanup(func() { Detectors = saved })

	Detectors = append(append([]Detector{}, saved...), func(h Hypothesis, p *Profile) {
		p.Context = ContextSignal{Present: true, Setting: "on stage"}
	})
	if Analyze(Hypothesis{Text: "nervous performers"}).Mode() != ModeContext {
		t.Error("expected appended detector to take effect")
	}
}

func TestStatementAndKey(t *testing.T) {
	structured := Hypothesis{Audience: "Freelancers", Problem: "late client payments"}
	if structured.Statement() != "Freelancers struggling with late client payments" {
		t.Errorf("unexpected statement %q", structured.Statement())
	}

	a := Hypothesis{Text: "  Freelancers   NOT getting paid "}
	b := Hypothesis{Text: "freelancers not getting paid"}
	if a.Key() != b.Key() {
		t.Error("equivalent hypotheses must share a key")
	}
	if (Hypothesis{}).IsEmpty() != true {
		t.Error("expected empty hypothesis")
	}
}
