package models

import "time"

// Timeframe identifies a candle interval understood by the upstream vendor.
type Timeframe string

const (
	TimeframeThirtyMin Timeframe = "THIRTY_MINUTE"
	TimeframeOneDay    Timeframe = "ONE_DAY"
)

// Instrument is immutable reference data; identity key is (Exchange, Token).
type Instrument struct {
	Exchange      string `json:"exchange" yaml:"exchange"`
	Token         string `json:"token" yaml:"token"`
	TradingSymbol string `json:"tradingsymbol" yaml:"tradingsymbol"`
	Category      string `json:"category,omitempty" yaml:"category,omitempty"`
}

// Key returns the cache/identity key for the instrument.
func (i Instrument) Key() string {
	return i.Exchange + ":" + i.Token
}

// DepthLevel is one price level of the order book.
type DepthLevel struct {
	Price    float64 `json:"price"`
	Quantity int64   `json:"quantity"`
	Orders   int64   `json:"orders,omitempty"`
}

// MarketDepth carries the top buy/sell levels returned with a full quote.
type MarketDepth struct {
	Buy  []DepthLevel `json:"buy,omitempty"`
	Sell []DepthLevel `json:"sell,omitempty"`
}

// Quote is one full-mode tick for an instrument. It is replaced wholesale on
// every fast cycle and never merged across ticks.
type Quote struct {
	Exchange      string       `json:"exchange"`
	Token         string       `json:"symbolToken"`
	TradingSymbol string       `json:"tradingSymbol,omitempty"`
	LTP           float64      `json:"ltp"`
	Open          float64      `json:"open"`
	High          float64      `json:"high"`
	Low           float64      `json:"low"`
	Close         float64      `json:"close"`
	TradeVolume   int64        `json:"tradeVolume"`
	OpenInterest  int64        `json:"opnInterest,omitempty"`
	TotBuyQty     int64        `json:"totBuyQuan"`
	TotSellQty    int64        `json:"totSellQuan"`
	High52W       float64      `json:"52WeekHigh,omitempty"`
	Low52W        float64      `json:"52WeekLow,omitempty"`
	Depth         *MarketDepth `json:"depth,omitempty"`
	AsOf          time.Time    `json:"asOf"`
}

// Candle is one OHLCV bar. Sequences are ordered by Timestamp and immutable
// once fetched.
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// IndicatorSet holds the last-bar indicator values for one
// (instrument, timeframe). Fields are pointers so a window that has not
// filled yet marshals as null rather than a misleading zero.
type IndicatorSet struct {
	EMA20      *float64  `json:"ema20"`
	EMA50      *float64  `json:"ema50"`
	SMA50      *float64  `json:"sma50"`
	SMA200     *float64  `json:"sma200"`
	RSI14      *float64  `json:"rsi14"`
	MACD       *float64  `json:"macd"`
	MACDSignal *float64  `json:"macdSignal"`
	MACDHist   *float64  `json:"macdHist"`
	Timeframe  Timeframe `json:"timeframe"`
	ComputedAt time.Time `json:"computedAt"`
}
