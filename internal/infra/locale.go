package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"market_go/internal/domain"
)

// localeFile is the on-disk message catalogue. Empty entries keep the default.
type localeFile struct {
	ConfigVersion     string `yaml:"config-version"`
	Prefix            string `yaml:"prefix"`
	ConfigReload      string `yaml:"config-reload"`
	NotEnoughItems    string `yaml:"not-enough-items"`
	InsufficientFunds string `yaml:"insufficient-funds"`
	InsufficientItems string `yaml:"insufficient-items"`
	BuySuccess        string `yaml:"buy-success"`
	SellSuccess       string `yaml:"sell-success"`
	Unbuyable         string `yaml:"unbuyable"`
	Unsellable        string `yaml:"unsellable"`
	BuyLimitReached   string `yaml:"buy-limit-reached"`
	SellLimitReached  string `yaml:"sell-limit-reached"`
	MarketRefreshed   string `yaml:"market-refreshed"`
	MarketRefreshTime string `yaml:"market-refresh-time"`
	InvalidMarketID   string `yaml:"invalid-market-id"`
	GUIOpenError      string `yaml:"gui-open-error"`
	ItemFormat        string `yaml:"item-format"`
}

var defaultMessages = map[string]string{
	domain.MsgPrefix:            "[Market] ",
	domain.MsgConfigReload:      "Configuration files have been reloaded.",
	domain.MsgNotEnoughItems:    "You do not have enough items to sell.",
	domain.MsgInsufficientFunds: "Insufficient funds.",
	domain.MsgInsufficientItems: "You do not have enough items to trade.",
	domain.MsgBuySuccess:        "Purchased <item> for <price>. Balance: <bal>",
	domain.MsgSellSuccess:       "Sold <item> for <price>. Balance: <bal>",
	domain.MsgUnbuyable:         "This item is not able to be purchased.",
	domain.MsgUnsellable:        "This item is not able to be sold.",
	domain.MsgBuyLimitReached:   "You have reached the purchase limit of this item.",
	domain.MsgSellLimitReached:  "You have reached the sell limit of this item.",
	domain.MsgMarketRefreshed:   "The <market> has been refreshed.",
	domain.MsgMarketRefreshTime: "The market will be refreshed in <time>.",
	domain.MsgInvalidMarketID:   "There is no market with this id.",
	domain.MsgGUIOpenError:      "Unable to open this market because of a configuration error.",
	domain.MsgItemFormat:        "<item_name> x<item_amount>",
}

// Locale renders message keys into viewer-facing text.
type Locale struct {
	messages map[string]string
}

// DefaultLocale returns the built-in English messages.
func DefaultLocale() *Locale {
	msgs := make(map[string]string, len(defaultMessages))
	for k, v := range defaultMessages {
		msgs[k] = v
	}
	return &Locale{messages: msgs}
}

// LoadLocale reads a locale file over the defaults. An empty path yields the defaults.
func LoadLocale(path string) (*Locale, error) {
	l := DefaultLocale()
	if path == "" {
		return l, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f localeFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse locale %s: %w", path, err)
	}

	for key, text := range map[string]string{
		domain.MsgPrefix:            f.Prefix,
		domain.MsgConfigReload:      f.ConfigReload,
		domain.MsgNotEnoughItems:    f.NotEnoughItems,
		domain.MsgInsufficientFunds: f.InsufficientFunds,
		domain.MsgInsufficientItems: f.InsufficientItems,
		domain.MsgBuySuccess:        f.BuySuccess,
		domain.MsgSellSuccess:       f.SellSuccess,
		domain.MsgUnbuyable:         f.Unbuyable,
		domain.MsgUnsellable:        f.Unsellable,
		domain.MsgBuyLimitReached:   f.BuyLimitReached,
		domain.MsgSellLimitReached:  f.SellLimitReached,
		domain.MsgMarketRefreshed:   f.MarketRefreshed,
		domain.MsgMarketRefreshTime: f.MarketRefreshTime,
		domain.MsgInvalidMarketID:   f.InvalidMarketID,
		domain.MsgGUIOpenError:      f.GUIOpenError,
		domain.MsgItemFormat:        f.ItemFormat,
	} {
		if text != "" {
			l.messages[key] = text
		}
	}
	return l, nil
}

// Text returns the template for key with placeholders substituted.
// Unknown keys render as the key itself.
func (l *Locale) Text(key string, placeholders map[string]string) string {
	tmpl, ok := l.messages[key]
	if !ok {
		tmpl = key
	}
	return substitute(tmpl, placeholders)
}

// Render is Text with the message prefix.
func (l *Locale) Render(key string, placeholders map[string]string) string {
	return l.messages[domain.MsgPrefix] + l.Text(key, placeholders)
}

// FormatItem renders a stack through the item-format template.
func (l *Locale) FormatItem(s domain.ItemStack) string {
	return l.Text(domain.MsgItemFormat, map[string]string{
		"item_name":   s.DisplayName(),
		"item_amount": strconv.Itoa(s.Amount),
	})
}

// substitute replaces every <name> with placeholders[name]. Unmatched tags stay.
func substitute(tmpl string, placeholders map[string]string) string {
	if len(placeholders) == 0 {
		return tmpl
	}
	pairs := make([]string, 0, len(placeholders)*2)
	for name, value := range placeholders {
		pairs = append(pairs, "<"+name+">", value)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}
