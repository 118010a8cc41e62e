package domain

// Message keys understood by every NotificationSink. Placeholder names are
// listed next to the keys that use them.
const (
	MsgPrefix            = "prefix"
	MsgConfigReload      = "configReload"
	MsgNotEnoughItems    = "notEnoughItems"    // selling an item the viewer does not hold
	MsgInsufficientFunds = "insufficientFunds" // balance below buy price
	MsgInsufficientItems = "insufficientItems" // barter basket not covered
	MsgBuySuccess        = "buySuccess"        // item, price, bal, item0..itemN
	MsgSellSuccess       = "sellSuccess"       // item, price, bal
	MsgUnbuyable         = "unbuyable"
	MsgUnsellable        = "unsellable"
	MsgBuyLimitReached   = "buyLimitReached"
	MsgSellLimitReached  = "sellLimitReached"
	MsgMarketRefreshed   = "marketRefreshed"   // market, id
	MsgMarketRefreshTime = "marketRefreshTime" // market, time
	MsgInvalidMarketID   = "invalidMarketId"
	MsgGUIOpenError      = "guiOpenError"
	MsgItemFormat        = "itemFormat" // item_name, item_amount
)
