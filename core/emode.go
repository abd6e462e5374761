package core

import (
	"sort"

	"github.com/DomeLiquid/riskcore/fixed"
	"github.com/DomeLiquid/riskcore/solana"
)

type EmodeTag uint16

const EmodeTagUnset EmodeTag = 0

type EmodeEntryFlags uint8

// EmodeAppliesToIsolated lets an entry lift isolated collateral banks.
const EmodeAppliesToIsolated EmodeEntryFlags = 1 << 0

type (
	EmodeEntry struct {
		CollateralBankEmodeTag EmodeTag        `json:"collateralBankEmodeTag"`
		Flags                  EmodeEntryFlags `json:"flags"`
		AssetWeightInit        fixed.I80F48    `json:"assetWeightInit"`
		AssetWeightMaint       fixed.I80F48    `json:"assetWeightMaint"`
	}

	// EmodeSettings are the entries a bank offers when it is borrowed.
	EmodeSettings struct {
		EmodeTag EmodeTag     `json:"emodeTag"`
		Entries  []EmodeEntry `json:"entries"`
	}

	// EmodeConfig is the reconciled set of entries active for one account.
	EmodeConfig struct {
		Entries []EmodeEntry `json:"entries"`
	}

	EmodePair struct {
		CollateralBanks   []solana.PublicKey `json:"collateralBanks"`
		CollateralBankTag EmodeTag           `json:"collateralBankTag"`
		LiabilityBank     solana.PublicKey   `json:"liabilityBank"`
		LiabilityBankTag  EmodeTag           `json:"liabilityBankTag"`
		AssetWeightMaint  fixed.I80F48       `json:"assetWeightMaint"`
		AssetWeightInit   fixed.I80F48       `json:"assetWeightInit"`
		Flags             EmodeEntryFlags    `json:"flags"`
	}

	ActiveEmodePair struct {
		CollateralBanks    []solana.PublicKey `json:"collateralBanks"`
		CollateralBankTags []EmodeTag         `json:"collateralBankTags"`
		LiabilityBanks     []solana.PublicKey `json:"liabilityBanks"`
		LiabilityBankTags  []EmodeTag         `json:"liabilityBankTags"`
		AssetWeightMaint   fixed.I80F48       `json:"assetWeightMaint"`
		AssetWeightInit    fixed.I80F48       `json:"assetWeightInit"`
	}

	EmodeImpact struct {
		Status         EmodeImpactStatus `json:"status"`
		ResultingPairs []EmodePair       `json:"resultingPairs"`
		ActivePair     *ActiveEmodePair  `json:"activePair,omitempty"`
	}

	// ActionEmodeImpact holds one impact per action that applies to the bank; the rest are nil.
	ActionEmodeImpact struct {
		BorrowImpact      *EmodeImpact `json:"borrowImpact,omitempty"`
		SupplyImpact      *EmodeImpact `json:"supplyImpact,omitempty"`
		RepayAllImpact    *EmodeImpact `json:"repayAllImpact,omitempty"`
		WithdrawAllImpact *EmodeImpact `json:"withdrawAllImpact,omitempty"`
	}
)

type EmodeImpactStatus uint8

const (
	EmodeImpactInactive EmodeImpactStatus = iota
	EmodeImpactActivate
	EmodeImpactExtend
	EmodeImpactIncrease
	EmodeImpactReduce
	EmodeImpactRemove
)

func (s EmodeImpactStatus) String() string {
	switch s {
	case EmodeImpactInactive:
		return "InactiveEmode"
	case EmodeImpactActivate:
		return "ActivateEmode"
	case EmodeImpactExtend:
		return "ExtendEmode"
	case EmodeImpactIncrease:
		return "IncreaseEmode"
	case EmodeImpactReduce:
		return "ReduceEmode"
	case EmodeImpactRemove:
		return "RemoveEmode"
	default:
		return "Unknown"
	}
}

func (e EmodeEntry) IsEmpty() bool {
	return e.CollateralBankEmodeTag == EmodeTagUnset
}

func (e EmodeEntry) AppliesToIsolated() bool {
	return e.Flags&EmodeAppliesToIsolated != 0
}

func (s EmodeSettings) clone() EmodeSettings {
	if s.Entries == nil {
		return s
	}
	entries := make([]EmodeEntry, len(s.Entries))
	copy(entries, s.Entries)
	s.Entries = entries
	return s
}

// ActiveEntries skips padding entries.
func (s EmodeSettings) ActiveEntries() []EmodeEntry {
	entries := make([]EmodeEntry, 0, len(s.Entries))
	for _, e := range s.Entries {
		if !e.IsEmpty() {
			entries = append(entries, e)
		}
	}
	return entries
}

func (s EmodeSettings) Validate() error {
	if len(s.Entries) > EMODE_ENTRIES {
		return ErrEmodeInvalid
	}
	seen := make(map[EmodeTag]bool, len(s.Entries))
	for _, e := range s.ActiveEntries() {
		if seen[e.CollateralBankEmodeTag] {
			return ErrEmodeInvalid
		}
		seen[e.CollateralBankEmodeTag] = true
		if e.AssetWeightInit.IsNegative() || e.AssetWeightInit.GreaterThan(e.AssetWeightMaint) || e.AssetWeightMaint.GreaterThan(ONE) {
			return ErrEmodeInvalid
		}
	}
	return nil
}

func (c EmodeConfig) IsEmpty() bool {
	return len(c.Entries) == 0
}

func (c EmodeConfig) FindWithTag(tag EmodeTag) (EmodeEntry, bool) {
	if tag == EmodeTagUnset {
		return EmodeEntry{}, false
	}
	for _, e := range c.Entries {
		if e.CollateralBankEmodeTag == tag {
			return e, true
		}
	}
	return EmodeEntry{}, false
}

// ReconcileEmode intersects the entries of every liability bank. Weights are the
// minimum across banks and flags are ANDed. A liability bank without a tag or
// without entries disables e-mode for the account.
func ReconcileEmode(liabilityBanks []*Bank) EmodeConfig {
	if len(liabilityBanks) == 0 {
		return EmodeConfig{}
	}

	var merged map[EmodeTag]EmodeEntry
	for _, bank := range liabilityBanks {
		if bank.Emode.EmodeTag == EmodeTagUnset {
			return EmodeConfig{}
		}
		entries := bank.Emode.ActiveEntries()
		if len(entries) == 0 {
			return EmodeConfig{}
		}

		current := make(map[EmodeTag]EmodeEntry, len(entries))
		for _, e := range entries {
			if _, ok := current[e.CollateralBankEmodeTag]; !ok {
				current[e.CollateralBankEmodeTag] = e
			}
		}

		if merged == nil {
			merged = current
			continue
		}

		next := make(map[EmodeTag]EmodeEntry, len(merged))
		for tag, prev := range merged {
			e, ok := current[tag]
			if !ok {
				continue
			}
			next[tag] = EmodeEntry{
				CollateralBankEmodeTag: tag,
				Flags:                  prev.Flags & e.Flags,
				AssetWeightInit:        fixed.Min(prev.AssetWeightInit, e.AssetWeightInit),
				AssetWeightMaint:       fixed.Min(prev.AssetWeightMaint, e.AssetWeightMaint),
			}
		}
		merged = next
	}

	config := EmodeConfig{Entries: make([]EmodeEntry, 0, len(merged))}
	for _, e := range merged {
		config.Entries = append(config.Entries, e)
	}
	sort.Slice(config.Entries, func(i, j int) bool {
		return config.Entries[i].CollateralBankEmodeTag < config.Entries[j].CollateralBankEmodeTag
	})
	return config
}

// ApplyEmode returns bank with its asset weights raised by the matching entry,
// or bank itself when no entry applies.
func (c EmodeConfig) ApplyEmode(bank *Bank) *Bank {
	entry, ok := c.FindWithTag(bank.Emode.EmodeTag)
	if !ok {
		return bank
	}
	if bank.BankConfig.RiskTier == Isolated && !entry.AppliesToIsolated() {
		return bank
	}
	return bank.WithEmodeWeights(entry.AssetWeightInit, entry.AssetWeightMaint)
}

// GetEmodePairs lists one pair per (liability bank, entry). Collateral banks are
// taken from banks in order.
func GetEmodePairs(banks []*Bank) []EmodePair {
	var pairs []EmodePair
	for _, bank := range banks {
		if bank.Emode.EmodeTag == EmodeTagUnset {
			continue
		}
		for _, entry := range bank.Emode.ActiveEntries() {
			var collateralBanks []solana.PublicKey
			for _, b := range banks {
				if b.Emode.EmodeTag == entry.CollateralBankEmodeTag {
					collateralBanks = append(collateralBanks, b.Address)
				}
			}
			pairs = append(pairs, EmodePair{
				CollateralBanks:   collateralBanks,
				CollateralBankTag: entry.CollateralBankEmodeTag,
				LiabilityBank:     bank.Address,
				LiabilityBankTag:  bank.Emode.EmodeTag,
				AssetWeightMaint:  entry.AssetWeightMaint,
				AssetWeightInit:   entry.AssetWeightInit,
				Flags:             entry.Flags,
			})
		}
	}
	return pairs
}

type emodeWeights struct {
	init, maint fixed.I80F48
	flags       EmodeEntryFlags
}

// AdjustBankWeightsWithEmodePairs returns a new bank map where every collateral
// bank of pairs carries the lowest e-mode weights across pairs, never below its own.
func AdjustBankWeightsWithEmodePairs(banks map[string]*Bank, pairs []EmodePair) map[string]*Bank {
	adjusted := make(map[string]*Bank, len(banks))
	for k, b := range banks {
		adjusted[k] = b
	}
	if len(pairs) == 0 {
		return adjusted
	}

	lowest := make(map[string]emodeWeights)
	for _, pair := range pairs {
		for _, collateralBank := range pair.CollateralBanks {
			key := collateralBank.String()
			w, ok := lowest[key]
			if !ok {
				lowest[key] = emodeWeights{init: pair.AssetWeightInit, maint: pair.AssetWeightMaint, flags: pair.Flags}
				continue
			}
			lowest[key] = emodeWeights{
				init:  fixed.Min(w.init, pair.AssetWeightInit),
				maint: fixed.Min(w.maint, pair.AssetWeightMaint),
				flags: w.flags & pair.Flags,
			}
		}
	}

	for key, w := range lowest {
		bank, ok := adjusted[key]
		if !ok {
			continue
		}
		if bank.BankConfig.RiskTier == Isolated && w.flags&EmodeAppliesToIsolated == 0 {
			continue
		}
		adjusted[key] = bank.WithEmodeWeights(w.init, w.maint)
	}
	return adjusted
}

func containsKey(keys []solana.PublicKey, key solana.PublicKey) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

// ComputeActiveEmodePairs returns the pairs in effect for the given positions.
func ComputeActiveEmodePairs(pairs []EmodePair, activeLiabilities, activeCollateral []solana.PublicKey) []EmodePair {
	configured := make([]EmodePair, 0, len(pairs))
	for _, p := range pairs {
		if p.CollateralBankTag != EmodeTagUnset && p.LiabilityBankTag != EmodeTagUnset {
			configured = append(configured, p)
		}
	}

	liabTagByBank := make(map[solana.PublicKey]EmodeTag)
	for _, p := range configured {
		liabTagByBank[p.LiabilityBank] = p.LiabilityBankTag
	}
	requiredTags := make(map[EmodeTag]bool)
	for _, liab := range activeLiabilities {
		tag, ok := liabTagByBank[liab]
		if !ok {
			return nil
		}
		requiredTags[tag] = true
	}

	var possible []EmodePair
	for _, p := range configured {
		if !containsKey(activeLiabilities, p.LiabilityBank) {
			continue
		}
		for _, c := range p.CollateralBanks {
			if containsKey(activeCollateral, c) {
				possible = append(possible, p)
				break
			}
		}
	}
	if len(possible) == 0 {
		return nil
	}

	byCollTag := make(map[EmodeTag][]EmodePair)
	var collTags []EmodeTag
	for _, p := range possible {
		if _, ok := byCollTag[p.CollateralBankTag]; !ok {
			collTags = append(collTags, p.CollateralBankTag)
		}
		byCollTag[p.CollateralBankTag] = append(byCollTag[p.CollateralBankTag], p)
	}
	sort.Slice(collTags, func(i, j int) bool { return collTags[i] < collTags[j] })

	var active []EmodePair
	for _, tag := range collTags {
		group := byCollTag[tag]
		supports := make(map[EmodeTag]bool, len(group))
		for _, p := range group {
			supports[p.LiabilityBankTag] = true
		}
		coversAll := true
		for rt := range requiredTags {
			if !supports[rt] {
				coversAll = false
				break
			}
		}
		if coversAll {
			active = append(active, group...)
		}
	}
	return active
}

func minAssetWeightInit(pairs []EmodePair) fixed.I80F48 {
	m := pairs[0].AssetWeightInit
	for _, p := range pairs[1:] {
		m = fixed.Min(m, p.AssetWeightInit)
	}
	return m
}

func diffEmodeState(before, after []EmodePair) EmodeImpactStatus {
	was, isOn := len(before) > 0, len(after) > 0
	switch {
	case !was && !isOn:
		return EmodeImpactInactive
	case !was && isOn:
		return EmodeImpactActivate
	case was && !isOn:
		return EmodeImpactRemove
	}
	return compareEmodeWeights(before, after)
}

func compareEmodeWeights(before, after []EmodePair) EmodeImpactStatus {
	b, a := minAssetWeightInit(before), minAssetWeightInit(after)
	switch {
	case a.GreaterThan(b):
		return EmodeImpactIncrease
	case a.LessThan(b):
		return EmodeImpactReduce
	default:
		return EmodeImpactExtend
	}
}

// NewActiveEmodePair summarizes pairs around the one with the lowest initial weight.
func NewActiveEmodePair(pairs []EmodePair) *ActiveEmodePair {
	if len(pairs) == 0 {
		return nil
	}
	best := pairs[0]
	for _, p := range pairs[1:] {
		if p.AssetWeightInit.LessThan(best.AssetWeightInit) {
			best = p
		}
	}

	active := &ActiveEmodePair{
		AssetWeightMaint: best.AssetWeightMaint,
		AssetWeightInit:  best.AssetWeightInit,
	}
	seenBanks := make(map[solana.PublicKey]bool)
	seenCollTags := make(map[EmodeTag]bool)
	seenLiabBanks := make(map[solana.PublicKey]bool)
	seenLiabTags := make(map[EmodeTag]bool)
	for _, p := range pairs {
		for _, c := range p.CollateralBanks {
			if !seenBanks[c] {
				seenBanks[c] = true
				active.CollateralBanks = append(active.CollateralBanks, c)
			}
		}
		if !seenCollTags[p.CollateralBankTag] {
			seenCollTags[p.CollateralBankTag] = true
			active.CollateralBankTags = append(active.CollateralBankTags, p.CollateralBankTag)
		}
		if !seenLiabBanks[p.LiabilityBank] {
			seenLiabBanks[p.LiabilityBank] = true
			active.LiabilityBanks = append(active.LiabilityBanks, p.LiabilityBank)
		}
		if !seenLiabTags[p.LiabilityBankTag] {
			seenLiabTags[p.LiabilityBankTag] = true
			active.LiabilityBankTags = append(active.LiabilityBankTags, p.LiabilityBankTag)
		}
	}
	return active
}

type emodeAction uint8

const (
	emodeBorrow emodeAction = iota
	emodeRepay
	emodeSupply
	emodeWithdraw
)

func withKey(keys []solana.PublicKey, key solana.PublicKey) []solana.PublicKey {
	out := make([]solana.PublicKey, len(keys), len(keys)+1)
	copy(out, keys)
	if !containsKey(out, key) {
		out = append(out, key)
	}
	return out
}

func withoutKey(keys []solana.PublicKey, key solana.PublicKey) []solana.PublicKey {
	out := make([]solana.PublicKey, 0, len(keys))
	for _, k := range keys {
		if k != key {
			out = append(out, k)
		}
	}
	return out
}

// ComputeEmodeImpacts simulates borrow, supply, repay-all and withdraw-all on every
// bank and reports how each would change the account's e-mode. Keys are base58
// bank addresses.
func ComputeEmodeImpacts(pairs []EmodePair, activeLiabilities, activeCollateral, allBanks []solana.PublicKey) map[string]ActionEmodeImpact {
	basePairs := ComputeActiveEmodePairs(pairs, activeLiabilities, activeCollateral)
	baseOn := len(basePairs) > 0

	liabTagMap := make(map[solana.PublicKey]EmodeTag)
	for _, p := range pairs {
		if p.LiabilityBankTag != EmodeTagUnset {
			liabTagMap[p.LiabilityBank] = p.LiabilityBankTag
		}
	}
	existingTags := make(map[EmodeTag]bool)
	for _, l := range activeLiabilities {
		if tag, ok := liabTagMap[l]; ok {
			existingTags[tag] = true
		}
	}

	collSet := make(map[solana.PublicKey]bool)
	for _, p := range pairs {
		for _, c := range p.CollateralBanks {
			collSet[c] = true
		}
	}

	simulate := func(bank solana.PublicKey, action emodeAction) *EmodeImpact {
		liabs, colls := activeLiabilities, activeCollateral
		switch action {
		case emodeBorrow:
			liabs = withKey(liabs, bank)
		case emodeRepay:
			liabs = withoutKey(liabs, bank)
		case emodeSupply:
			colls = withKey(colls, bank)
		case emodeWithdraw:
			colls = withoutKey(colls, bank)
		}

		after := ComputeActiveEmodePairs(pairs, liabs, colls)
		isOn := len(after) > 0
		status := diffEmodeState(basePairs, after)

		switch action {
		case emodeBorrow:
			tag, ok := liabTagMap[bank]
			switch {
			case !ok && baseOn:
				status = EmodeImpactRemove
			case !ok:
				status = EmodeImpactInactive
			case baseOn && !isOn:
				status = EmodeImpactRemove
			case baseOn && existingTags[tag]:
				status = EmodeImpactExtend
			}
		case emodeSupply:
			switch {
			case !baseOn && isOn:
				status = EmodeImpactActivate
			case baseOn && isOn:
				status = EmodeImpactExtend
			default:
				status = EmodeImpactInactive
			}
		case emodeWithdraw:
			switch {
			case !baseOn:
				status = EmodeImpactInactive
			case !isOn:
				status = EmodeImpactRemove
			default:
				status = compareEmodeWeights(basePairs, after)
			}
		}

		return &EmodeImpact{
			Status:         status,
			ResultingPairs: after,
			ActivePair:     NewActiveEmodePair(after),
		}
	}

	result := make(map[string]ActionEmodeImpact, len(allBanks))
	for _, bank := range allBanks {
		var impact ActionEmodeImpact
		isCollateral := containsKey(activeCollateral, bank)
		isLiability := containsKey(activeLiabilities, bank)

		if !isCollateral {
			impact.BorrowImpact = simulate(bank, emodeBorrow)
		}
		if collSet[bank] && !isCollateral && !isLiability {
			impact.SupplyImpact = simulate(bank, emodeSupply)
		}
		if isLiability {
			impact.RepayAllImpact = simulate(bank, emodeRepay)
		}
		if isCollateral {
			impact.WithdrawAllImpact = simulate(bank, emodeWithdraw)
		}
		result[bank.String()] = impact
	}
	return result
}
