package uploader

import (
	"sort"

	"github.com/google/uuid"

	"seed-ingest/internal/model"
	"seed-ingest/internal/storage"
)

// symbolPlan gathers every queued change for one symbol in acceptance order.
type symbolPlan struct {
	symbol     string
	changeSets []uuid.UUID
	symbols    []model.SymbolChange
	data       []model.DataChange
}

func buildPlans(pending []storage.PendingChangeSet) []*symbolPlan {
	bySymbol := make(map[string]*symbolPlan)
	get := func(name string, id uuid.UUID) *symbolPlan {
		p, ok := bySymbol[name]
		if !ok {
			p = &symbolPlan{symbol: name}
			bySymbol[name] = p
		}
		if n := len(p.changeSets); n == 0 || p.changeSets[n-1] != id {
			p.changeSets = append(p.changeSets, id)
		}
		return p
	}

	for _, pc := range pending {
		cs := pc.ChangeSet
		for _, sc := range cs.Symbols {
			p := get(sc.Record.Name, cs.ID)
			p.symbols = append(p.symbols, sc)
		}
		for _, dc := range cs.Data {
			p := get(dc.Symbol, cs.ID)
			p.data = append(p.data, dc)
		}
	}

	plans := make([]*symbolPlan, 0, len(bySymbol))
	for _, p := range bySymbol {
		plans = append(plans, p)
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].symbol < plans[j].symbol })
	return plans
}

// mutation folds the plan into one storage mutation. Removals are applied
// after additions: a queued symbol removal or file removal wins over any
// addition for the same symbol within the cycle.
func (p *symbolPlan) mutation(expected int64) storage.Mutation {
	m := storage.Mutation{Symbol: p.symbol, ExpectedVersion: expected}

	for _, sc := range p.symbols {
		switch sc.Op {
		case model.OpRemove:
			m.RemoveSymbol = true
		default:
			rec := sc.Record
			m.Upsert = &rec
		}
	}
	if m.RemoveSymbol {
		m.Upsert = nil
		return m
	}

	type rowOp struct {
		row     model.DataRow
		deleted bool
	}
	ops := make(map[int64]rowOp)
	for _, dc := range p.data {
		if dc.RemoveFile {
			m.ClearRows = true
		}
		for _, row := range dc.Upserts {
			ops[row.Time.UnixNano()] = rowOp{row: row}
		}
		for _, ts := range dc.Deletes {
			ops[ts.UnixNano()] = rowOp{row: model.DataRow{Time: ts}, deleted: true}
		}
	}
	if m.ClearRows {
		return m
	}

	for _, op := range ops {
		if op.deleted {
			m.DeleteRows = append(m.DeleteRows, op.row.Time)
			continue
		}
		m.UpsertRows = append(m.UpsertRows, op.row)
	}
	sort.Slice(m.UpsertRows, func(i, j int) bool { return m.UpsertRows[i].Time.Before(m.UpsertRows[j].Time) })
	sort.Slice(m.DeleteRows, func(i, j int) bool { return m.DeleteRows[i].Before(m.DeleteRows[j]) })
	return m
}
