package catalog

import "github.com/rickgao/fmp-data/internal/model"

// Entity ids of the default FMP catalog.
const (
	StockSymbol       = "stock_symbol"
	CompanyProfile    = "company_profile"
	SP500Constituent  = "sp500_constituent"
	NasdaqConstituent = "nasdaq_constituent"
	DailyChart        = "daily_chart"
	Dividend          = "dividend"
	KeyMetrics        = "key_metrics"
)

// DefaultSymbolBatch is how many symbols share one profile request.
const DefaultSymbolBatch = 50

// Default returns the FMP catalog: the symbol list, company profiles,
// index constituents and per-symbol time series.
func Default() *Catalog {
	return MustNew(DefaultEntities()...)
}

// DefaultEntities returns fresh copies of the default entity types so
// callers can tune batch sizes before building a catalog.
func DefaultEntities() []*model.EntityType {
	return []*model.EntityType{
		stockSymbol(),
		companyProfile(),
		constituent(SP500Constituent, "/api/v3/sp500_constituent"),
		constituent(NasdaqConstituent, "/api/v3/nasdaq_constituent"),
		dailyChart(),
		dividend(),
		keyMetrics(),
	}
}

func symbolRef() []model.Reference {
	return []model.Reference{{Column: "symbol", Entity: StockSymbol}}
}

func stockSymbol() *model.EntityType {
	return &model.EntityType{
		ID: StockSymbol,
		Fields: []model.FieldDef{
			{Name: "symbol", Kind: model.KindString, Required: true},
			{Name: "name", Kind: model.KindString},
			{Name: "price", Kind: model.KindDecimal},
			{Name: "exchange", Kind: model.KindString},
			{Name: "exchange_short_name", Key: "exchangeShortName", Kind: model.KindString},
			{Name: "type", Kind: model.KindString},
		},
		Key:      []string{"symbol"},
		Source:   model.SourceList,
		Endpoint: "/api/v3/stock/list",
	}
}

func companyProfile() *model.EntityType {
	return &model.EntityType{
		ID: CompanyProfile,
		Fields: []model.FieldDef{
			{Name: "symbol", Kind: model.KindString, Required: true},
			{Name: "company_name", Key: "companyName", Kind: model.KindString},
			{Name: "currency", Kind: model.KindString},
			{Name: "cik", Kind: model.KindString},
			{Name: "isin", Kind: model.KindString},
			{Name: "cusip", Kind: model.KindString},
			{Name: "exchange_short_name", Key: "exchangeShortName", Kind: model.KindString},
			{Name: "industry", Kind: model.KindString},
			{Name: "sector", Kind: model.KindString},
			{Name: "country", Kind: model.KindString},
			{Name: "website", Kind: model.KindString},
			{Name: "description", Kind: model.KindString},
			{Name: "image", Kind: model.KindString},
			{Name: "ipo_date", Key: "ipoDate", Kind: model.KindDate},
			{Name: "beta", Kind: model.KindNumber},
			{Name: "vol_avg", Key: "volAvg", Kind: model.KindInteger},
			{Name: "mkt_cap", Key: "mktCap", Kind: model.KindInteger},
			{Name: "is_etf", Key: "isEtf", Kind: model.KindBool},
			{Name: "is_actively_trading", Key: "isActivelyTrading", Kind: model.KindBool},
			{Name: "is_adr", Key: "isAdr", Kind: model.KindBool},
			{Name: "is_fund", Key: "isFund", Kind: model.KindBool},
		},
		Key:         []string{"symbol"},
		DependsOn:   []string{StockSymbol},
		References:  symbolRef(),
		Source:      model.SourcePerSymbol,
		Endpoint:    "/api/v3/profile/{symbol}",
		SymbolsFrom: StockSymbol,
		SymbolBatch: DefaultSymbolBatch,
	}
}

// constituent declares an index membership list. Membership rows join
// company profiles on symbol, so profiles are populated first.
func constituent(id, endpoint string) *model.EntityType {
	return &model.EntityType{
		ID: id,
		Fields: []model.FieldDef{
			{Name: "symbol", Kind: model.KindString, Required: true},
			{Name: "name", Kind: model.KindString},
			{Name: "sector", Kind: model.KindString},
			{Name: "sub_sector", Key: "subSector", Kind: model.KindString},
			{Name: "head_quarter", Key: "headQuarter", Kind: model.KindString},
			{Name: "date_first_added", Key: "dateFirstAdded", Kind: model.KindDate},
			{Name: "cik", Kind: model.KindString},
			{Name: "founded", Kind: model.KindString},
		},
		Key:        []string{"symbol"},
		DependsOn:  []string{StockSymbol, CompanyProfile},
		References: symbolRef(),
		Source:     model.SourceList,
		Endpoint:   endpoint,
	}
}

func dailyChart() *model.EntityType {
	return &model.EntityType{
		ID: DailyChart,
		Fields: []model.FieldDef{
			{Name: "symbol", Kind: model.KindString, Required: true},
			{Name: "date", Kind: model.KindDate, Required: true},
			{Name: "open", Kind: model.KindDecimal},
			{Name: "high", Kind: model.KindDecimal},
			{Name: "low", Kind: model.KindDecimal},
			{Name: "close", Kind: model.KindDecimal, Required: true},
			{Name: "adj_close", Key: "adjClose", Kind: model.KindDecimal},
			{Name: "volume", Kind: model.KindInteger},
			{Name: "unadjusted_volume", Key: "unadjustedVolume", Kind: model.KindInteger},
			{Name: "change", Kind: model.KindDecimal},
			{Name: "change_percent", Key: "changePercent", Kind: model.KindNumber},
			{Name: "vwap", Kind: model.KindDecimal},
		},
		Key:         []string{"symbol", "date"},
		DependsOn:   []string{StockSymbol},
		References:  symbolRef(),
		TimeSeries:  true,
		TimeField:   "date",
		SymbolField: "symbol",
		Source:      model.SourcePerSymbol,
		Endpoint:    "/api/v3/historical-price-full/{symbol}",
		ItemsPath:   "historical",
		Windowed:    true,
		SymbolsFrom: StockSymbol,
		SymbolBatch: 1,
	}
}

func dividend() *model.EntityType {
	return &model.EntityType{
		ID: Dividend,
		Fields: []model.FieldDef{
			{Name: "symbol", Kind: model.KindString, Required: true},
			{Name: "date", Kind: model.KindDate, Required: true},
			{Name: "label", Kind: model.KindString},
			{Name: "adj_dividend", Key: "adjDividend", Kind: model.KindDecimal},
			{Name: "dividend", Kind: model.KindDecimal},
			{Name: "record_date", Key: "recordDate", Kind: model.KindDate},
			{Name: "payment_date", Key: "paymentDate", Kind: model.KindDate},
			{Name: "declaration_date", Key: "declarationDate", Kind: model.KindDate},
		},
		Key:         []string{"symbol", "date"},
		DependsOn:   []string{StockSymbol},
		References:  symbolRef(),
		TimeSeries:  true,
		TimeField:   "date",
		SymbolField: "symbol",
		Source:      model.SourcePerSymbol,
		Endpoint:    "/api/v3/historical-price-full/stock_dividend/{symbol}",
		ItemsPath:   "historical",
		Windowed:    true,
		SymbolsFrom: StockSymbol,
		SymbolBatch: 1,
	}
}

func keyMetrics() *model.EntityType {
	return &model.EntityType{
		ID: KeyMetrics,
		Fields: []model.FieldDef{
			{Name: "symbol", Kind: model.KindString, Required: true},
			{Name: "date", Kind: model.KindDate, Required: true},
			{Name: "calendar_year", Key: "calendarYear", Kind: model.KindString},
			{Name: "period", Kind: model.KindString},
			{Name: "revenue_per_share", Key: "revenuePerShare", Kind: model.KindNumber},
			{Name: "net_income_per_share", Key: "netIncomePerShare", Kind: model.KindNumber},
			{Name: "operating_cash_flow_per_share", Key: "operatingCashFlowPerShare", Kind: model.KindNumber},
			{Name: "free_cash_flow_per_share", Key: "freeCashFlowPerShare", Kind: model.KindNumber},
			{Name: "book_value_per_share", Key: "bookValuePerShare", Kind: model.KindNumber},
			{Name: "market_cap", Key: "marketCap", Kind: model.KindNumber},
			{Name: "enterprise_value", Key: "enterpriseValue", Kind: model.KindNumber},
			{Name: "pe_ratio", Key: "peRatio", Kind: model.KindNumber},
			{Name: "price_to_sales_ratio", Key: "priceToSalesRatio", Kind: model.KindNumber},
			{Name: "pb_ratio", Key: "pbRatio", Kind: model.KindNumber},
			{Name: "ev_to_ebitda", Key: "enterpriseValueOverEBITDA", Kind: model.KindNumber},
			{Name: "debt_to_equity", Key: "debtToEquity", Kind: model.KindNumber},
			{Name: "current_ratio", Key: "currentRatio", Kind: model.KindNumber},
			{Name: "dividend_yield", Key: "dividendYield", Kind: model.KindNumber},
			{Name: "payout_ratio", Key: "payoutRatio", Kind: model.KindNumber},
			{Name: "roic", Kind: model.KindNumber},
			{Name: "roe", Kind: model.KindNumber},
		},
		Key:         []string{"symbol", "date"},
		DependsOn:   []string{StockSymbol},
		References:  symbolRef(),
		TimeSeries:  true,
		TimeField:   "date",
		SymbolField: "symbol",
		Source:      model.SourcePerSymbol,
		Endpoint:    "/api/v3/key-metrics/{symbol}",
		Query:       map[string]string{"period": "quarter"},
		SymbolsFrom: StockSymbol,
		SymbolBatch: 1,
	}
}
