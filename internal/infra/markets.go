package infra

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"market_go/internal/domain"
)

const (
	chestDir    = "chest"
	merchantDir = "merchant"
)

// chestFile is the on-disk layout of a slot-grid market.
type chestFile struct {
	ConfigVersion string `yaml:"config-version"`
	RefreshTime   string `yaml:"refresh-time"`
	MarketName    string `yaml:"market-name"`
	GUI           struct {
		Size  int    `yaml:"size"`
		Name  string `yaml:"name"`
		Slots []int  `yaml:"slots"`
	} `yaml:"gui"`
	Items []chestItem `yaml:"items"`
}

type chestItem struct {
	TransactionType string                `yaml:"transaction-type"`
	TransactionName string                `yaml:"transaction-name"`
	DisplayItem     domain.ItemDescriptor `yaml:"display-item"`
	TransactionItem domain.ItemDescriptor `yaml:"transaction-item"`
	Amount          domain.AmountRange    `yaml:"amount"`
	RandomEnchants  domain.EnchantRoll    `yaml:"random-enchants"`
	Prices          struct {
		BuyFixed  *decimal.Decimal `yaml:"buy-fixed"`
		BuyMin    *decimal.Decimal `yaml:"buy-min"`
		BuyMax    *decimal.Decimal `yaml:"buy-max"`
		SellFixed *decimal.Decimal `yaml:"sell-fixed"`
		SellMin   *decimal.Decimal `yaml:"sell-min"`
		SellMax   *decimal.Decimal `yaml:"sell-max"`
		BuyItems  []stackSpec      `yaml:"buy-items"`
	} `yaml:"prices"`
	BuyLimit     *int     `yaml:"buy-limit"`
	SellLimit    *int     `yaml:"sell-limit"`
	BuyCommands  []string `yaml:"buy-commands"`
	SellCommands []string `yaml:"sell-commands"`
}

// stackSpec is an item with its amount and enchantment roll.
type stackSpec struct {
	Item           domain.ItemDescriptor `yaml:"item"`
	Amount         domain.AmountRange    `yaml:"amount"`
	RandomEnchants domain.EnchantRoll    `yaml:"random-enchants"`
}

// merchantFile is the on-disk layout of a trade-set market.
type merchantFile struct {
	ConfigVersion string      `yaml:"config-version"`
	RefreshTime   string      `yaml:"refresh-time"`
	MarketName    string      `yaml:"market-name"`
	GUIName       string      `yaml:"gui-name"`
	NumOfTrades   int         `yaml:"num-of-trades"`
	Trades        []tradeSpec `yaml:"trades"`
}

type tradeSpec struct {
	Limit  *int       `yaml:"limit"`
	Input1 *stackSpec `yaml:"input1"`
	Input2 *stackSpec `yaml:"input2"`
	Output *stackSpec `yaml:"output"`
}

// LoadMarkets reads every market file under dir/chest and dir/merchant.
// Files that fail to parse or validate are skipped; their errors are returned
// alongside the definitions that loaded.
func LoadMarkets(dir string, logger *slog.Logger) ([]domain.MarketDefinition, []error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		defs []domain.MarketDefinition
		errs []error
	)
	kinds := []struct {
		sub   string
		parse func(id string, data []byte, logger *slog.Logger) (domain.MarketDefinition, error)
	}{
		{chestDir, parseChest},
		{merchantDir, parseMerchant},
	}

	for _, k := range kinds {
		files, err := marketFiles(filepath.Join(dir, k.sub))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, path := range files {
			id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			data, err := os.ReadFile(path)
			if err != nil {
				errs = append(errs, domain.NewConfigError(id, "file", err))
				continue
			}
			def, err := k.parse(id, data, logger)
			if err == nil {
				err = def.Validate()
			}
			if err != nil {
				logger.Warn("Skipping market file", slog.String("path", path), slog.Any("error", err))
				errs = append(errs, err)
				continue
			}
			defs = append(defs, def)
		}
	}
	return defs, errs
}

// marketFiles lists the YAML files in dir. A missing directory holds no markets.
func marketFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read market dir %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yml", ".yaml":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func parseChest(id string, data []byte, _ *slog.Logger) (domain.MarketDefinition, error) {
	var f chestFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return domain.MarketDefinition{}, domain.NewConfigError(id, "yaml", err)
	}

	size := f.GUI.Size
	if size < 9 || size > 54 || size%9 != 0 {
		return domain.MarketDefinition{}, domain.NewConfigError(id, "gui.size", fmt.Errorf("size must be a multiple of 9 in [9,54], got %d", size))
	}
	for _, slot := range f.GUI.Slots {
		if slot < 0 || slot >= size {
			return domain.MarketDefinition{}, domain.NewConfigError(id, "gui.slots", fmt.Errorf("slot %d outside a %d-slot view", slot, size))
		}
	}

	def := domain.MarketDefinition{
		ID:              id,
		Name:            nameOr(f.MarketName, id),
		Kind:            domain.KindSlotGrid,
		RefreshInterval: f.RefreshTime,
		Positions:       append([]int(nil), f.GUI.Slots...),
	}
	for i, item := range f.Items {
		t, err := item.template()
		if err != nil {
			return domain.MarketDefinition{}, domain.NewConfigError(id, fmt.Sprintf("items[%d]", i), err)
		}
		def.Pool = append(def.Pool, t)
	}
	return def, nil
}

func (c chestItem) template() (domain.OfferTemplate, error) {
	t := domain.OfferTemplate{
		Name:      c.TransactionName,
		Display:   c.DisplayItem,
		Item:      c.TransactionItem,
		Amount:    c.Amount,
		Enchants:  c.RandomEnchants,
		Buy:       domain.PriceBand{Fixed: c.Prices.BuyFixed, Min: c.Prices.BuyMin, Max: c.Prices.BuyMax},
		Sell:      domain.PriceBand{Fixed: c.Prices.SellFixed, Min: c.Prices.SellMin, Max: c.Prices.SellMax},
		BuyLimit:  c.BuyLimit,
		SellLimit: c.SellLimit,
	}
	switch strings.ToLower(strings.TrimSpace(c.TransactionType)) {
	case "item":
		t.Kind = domain.RewardItem
	case "command":
		t.Kind = domain.RewardCommand
		t.BuyActions = c.BuyCommands
		t.SellActions = c.SellCommands
	default:
		return t, fmt.Errorf("unknown transaction-type %q", c.TransactionType)
	}
	for _, b := range c.Prices.BuyItems {
		t.Barter = append(t.Barter, b.barter())
	}
	return t, nil
}

func (s stackSpec) barter() domain.BarterTemplate {
	return domain.BarterTemplate{Item: s.Item, Amount: s.Amount, Enchants: s.RandomEnchants}
}

func parseMerchant(id string, data []byte, logger *slog.Logger) (domain.MarketDefinition, error) {
	var f merchantFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return domain.MarketDefinition{}, domain.NewConfigError(id, "yaml", err)
	}
	if f.NumOfTrades <= 0 {
		return domain.MarketDefinition{}, domain.NewConfigError(id, "num-of-trades", fmt.Errorf("must be positive, got %d", f.NumOfTrades))
	}

	def := domain.MarketDefinition{
		ID:              id,
		Name:            nameOr(f.MarketName, nameOr(f.GUIName, id)),
		Kind:            domain.KindTradeSet,
		RefreshInterval: f.RefreshTime,
	}
	for i := 0; i < f.NumOfTrades; i++ {
		def.Positions = append(def.Positions, i)
	}

	for i, tr := range f.Trades {
		if tr.Output == nil || tr.Output.Item.IsZero() || tr.Input1 == nil || tr.Input1.Item.IsZero() {
			logger.Warn("Dropping trade without output or first input", slog.String("market", id), slog.Int("trade", i))
			continue
		}
		t := domain.OfferTemplate{
			Item:     tr.Output.Item,
			Amount:   tr.Output.Amount,
			Enchants: tr.Output.RandomEnchants,
			Barter:   []domain.BarterTemplate{tr.Input1.barter()},
			BuyLimit: tr.Limit,
		}
		if tr.Input2 != nil && !tr.Input2.Item.IsZero() {
			t.Barter = append(t.Barter, tr.Input2.barter())
		}
		def.Pool = append(def.Pool, t)
	}
	return def, nil
}

func nameOr(name, fallback string) string {
	if strings.TrimSpace(name) != "" {
		return name
	}
	return fallback
}
