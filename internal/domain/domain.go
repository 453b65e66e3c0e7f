package domain

import (
	"fmt"
	"strings"
)

// Domain is one of the fixed cause areas. The set is closed; Parse rejects
// anything else.
type Domain string

const (
	Health              Domain = "health"
	Education           Domain = "education"
	EconomicDevelopment Domain = "economic_development"
	AnimalWelfare       Domain = "animal_welfare"
	Climate             Domain = "climate"
	Wellbeing           Domain = "wellbeing"
)

var knownDomains = map[Domain]string{
	Health:              "Health",
	Education:           "Education",
	EconomicDevelopment: "Economic Development",
	AnimalWelfare:       "Animal Welfare",
	Climate:             "Climate",
	Wellbeing:           "Wellbeing",
}

func ParseDomain(s string) (Domain, error) {
	d := Domain(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := knownDomains[d]; !ok {
		return "", fmt.Errorf("unknown domain %q", s)
	}
	return d, nil
}

func (d Domain) Valid() bool {
	_, ok := knownDomains[d]
	return ok
}

// DisplayName returns the title-cased label used in idea titles.
func (d Domain) DisplayName() string {
	if name, ok := knownDomains[d]; ok {
		return name
	}
	return string(d)
}

type Metric string

const (
	MetricDALYs     Metric = "dalys"
	MetricWALYs     Metric = "walys"
	MetricWELBYs    Metric = "welbys"
	MetricLogIncome Metric = "log_income"
	MetricCO2       Metric = "co2"
)

func (m Metric) Valid() bool {
	switch m {
	case MetricDALYs, MetricWALYs, MetricWELBYs, MetricLogIncome, MetricCO2:
		return true
	}
	return false
}

type IdeaType string

const (
	NewlyViable IdeaType = "newly_viable"
	Evergreen   IdeaType = "evergreen"
)

func (t IdeaType) Valid() bool {
	return t == NewlyViable || t == Evergreen
}
