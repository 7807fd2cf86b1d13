package application

import (
	"time"

	card "energy-gauge/internal/card/domain"
	energy "energy-gauge/internal/energy/domain"
)

// ReportRow is one statistic's growth over the reading window.
type ReportRow struct {
	Source      energy.SourceType
	StatisticID string
	Name        string
	Unit        string
	Growth      *float64
}

// Report is the export view of a card.
type Report struct {
	Card        card.Card
	Reading     Reading
	Rows        []ReportRow
	GeneratedAt time.Time
}

// Report builds the export view of a card from its latest snapshot.
func (s *Service) Report(cardID string) (Report, error) {
	s.mu.RLock()
	b, ok := s.bindings[cardID]
	if !ok {
		s.mu.RUnlock()
		return Report{}, card.ErrNotFound
	}
	c, reading, data := b.card, b.reading, b.data
	s.mu.RUnlock()

	report := Report{Card: c, Reading: reading, GeneratedAt: s.clock.Now()}
	if data != nil {
		report.Rows = reportRows(*data)
	}
	return report, nil
}

func reportRows(data energy.Data) []ReportRow {
	types := []energy.SourceType{energy.SourceSolar, energy.SourceGrid, energy.SourceBattery}
	var rows []ReportRow
	for _, sourceType := range types {
		for _, id := range energy.ReferencedStatisticIDs(data.Prefs, energy.Info{}, sourceType) {
			row := ReportRow{Source: sourceType, StatisticID: id, Name: id}
			if meta, ok := data.StatsMetadata[id]; ok {
				if meta.Name != nil && *meta.Name != "" {
					row.Name = *meta.Name
				}
				if meta.StatisticsUnitOfMeasurement != nil {
					row.Unit = *meta.StatisticsUnitOfMeasurement
				}
			}
			if growth, ok := energy.StatisticSumGrowth(data.Stats[id]); ok {
				row.Growth = &growth
			}
			rows = append(rows, row)
		}
	}
	return rows
}
