package formcheck

// SignalReading pairs a stability signal with its tracker reading for the frame.
type SignalReading struct {
	Signal  StabilitySignal
	Reading Reading
}

// Input is everything the evaluator looks at for one frame.
type Input struct {
	Primary   float64
	Stability []SignalReading
	// Alignment holds the secondary angles, in the order of the definition's alignment rules.
	Alignment []float64
	// SpeedDelta is the frame-to-frame change of the primary stabilizing signal.
	SpeedDelta    float64
	HasSpeedDelta bool
}

// Evaluator applies the form rules of one exercise definition. It holds no
// per-frame state, identical inputs always give identical results.
type Evaluator struct {
	def Definition
}

func NewEvaluator(def Definition) *Evaluator {
	return &Evaluator{def: def}
}

// Evaluate runs every enabled rule independently and reports all matches,
// in rule order: range of motion, stability, alignment, speed.
func (e *Evaluator) Evaluate(in Input) []FormError {
	var errs []FormError
	add := func(code ErrorCode) {
		errs = append(errs, FormError{Code: code, Message: e.def.Message(code)})
	}

	if e.def.RuleEnabled(RuleRangeOfMotion) {
		if in.Primary > e.def.ExtendedAngle+e.def.ExtensionSlack {
			add(InsufficientExtension)
		} else if in.Primary < e.def.ContractedAngle-e.def.ContractionSlack {
			add(OverContraction)
		}
	}

	if e.def.RuleEnabled(RuleStability) {
		for _, s := range in.Stability {
			if s.Reading.Full && s.Reading.Unstable {
				add(s.Signal.Code)
			}
		}
	}

	if e.def.RuleEnabled(RuleAlignment) {
		for i, angle := range in.Alignment {
			if i >= len(e.def.Alignment) {
				break
			}
			rule := e.def.Alignment[i]
			if angle < rule.Min || angle > rule.Max {
				add(rule.Code)
			}
		}
	}

	if e.def.RuleEnabled(RuleSpeed) && in.HasSpeedDelta && in.SpeedDelta > e.def.SpeedThreshold {
		add(ExcessiveSpeed)
	}

	return errs
}
