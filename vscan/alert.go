package vscan

// Alert is a raw alert as reported by the dynamic analysis engine
type Alert struct {
	PluginID    string `json:"pluginId"`
	Risk        string `json:"risk"`
	Confidence  string `json:"confidence"`
	Name        string `json:"name"`
	Description string `json:"description"`
	URL         string `json:"url"`
	Param       string `json:"param"`
	Evidence    string `json:"evidence"`
	Solution    string `json:"solution"`
	CWEID       string `json:"cweid"`
}

// ToFinding normalizes an engine alert. The engine risk level is passed through.
func (a *Alert) ToFinding(source string) *Finding {
	risk, ok := ParseRisk(a.Risk)
	if !ok {
		risk = RiskLow
	}
	return &Finding{
		Kind:        DastAlert,
		Source:      source,
		RefID:       a.PluginID,
		Location:    Location{URL: a.URL, Param: a.Param},
		Title:       a.Name,
		Description: a.Description,
		Risk:        risk,
		Evidence:    a.Evidence,
	}
}
