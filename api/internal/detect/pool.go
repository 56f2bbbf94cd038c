package detect

// Pool holds one Analyzer per configured engine; all share the prompt and the cache.
type Pool struct {
	engines   *Engines
	analyzers map[string]*Analyzer
}

func NewPool(engs *Engines, opts ...Option) *Pool {
	p := &Pool{engines: engs, analyzers: map[string]*Analyzer{}}
	for _, e := range []Engine{engs.Gemini, engs.OpenAI} {
		if e != nil {
			p.analyzers[e.Name()] = NewAnalyzer(e, opts...)
		}
	}
	return p
}

// Get resolves llmName the same way Engines.GetEngine does; "" means the default engine.
func (p *Pool) Get(llmName string) (*Analyzer, error) {
	e, err := p.engines.GetEngine(llmName)
	if err != nil {
		return nil, err
	}
	return p.analyzers[e.Name()], nil
}
