// Package broker - kis.go implements Client against Korea Investment &
// Securities' (KIS) Open API — REST for orders/balance/bars, websocket
// for tick/quote fan-out. The same code path serves both paper (모의투자)
// and live trading; only BaseURL, credentials, and TR IDs differ, all
// switched together off config.Mode (spec §4.3, §6).
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nitinkhare/quantumflow/internal/errs"
)

const (
	rateLimitRefillPerSec = 18.0
	rateLimitCapacity     = 18.0
	rateLimitAcquireWait  = 5 * time.Second

	httpMaxIdleConns        = 20
	httpMaxIdleConnsPerHost = 20
	httpRequestTimeout      = 10 * time.Second
	httpMaxRetries          = 3
)

// trIDs holds the TR identifiers that differ between paper and live
// (spec §4.3: "every request carries a per-call TR identifier switched
// between paper and live modes").
type trIDs struct {
	order       string
	orderCancel string
	balance     string
	orderStatus string
	minuteBars  string
}

var paperTRIDs = trIDs{
	order:       "VTTC0802U",
	orderCancel: "VTTC0803U",
	balance:     "VTTC8434R",
	orderStatus: "VTTC8001R",
	minuteBars:  "FHKST03010200",
}

var liveTRIDs = trIDs{
	order:       "TTTC0802U",
	orderCancel: "TTTC0803U",
	balance:     "TTTC8434R",
	orderStatus: "TTTC8001R",
	minuteBars:  "FHKST03010200",
}

// KISClient is the live/paper broker.Client implementation.
type KISClient struct {
	baseURL   string
	appKey    string
	appSecret string
	accountNo string
	productCd string
	tr        trIDs

	http    *http.Client
	limiter *RateLimiter
	tokens  *TokenCache
	logger  *zap.Logger

	feed     *kisFeed
	feedOnce sync.Once

	marketCloseAt func() time.Time
	onReconnect   func()
}

// KISConfig bundles everything NewKISClient needs, kept distinct from
// config.BrokerCreds so this package has no import-cycle dependency on
// the config package.
type KISConfig struct {
	BaseURL       string
	WSBaseURL     string
	AppKey        string
	AppSecret     string
	AccountNo     string
	ProductCd     string
	IsPaper       bool
	TokenCacheDir string
	Logger        *zap.Logger

	// OnReconnect, if set, is called each time the websocket feed
	// attempts to reconnect (dial failure or dropped read loop).
	OnReconnect func()
	// OnRateLimitWait, if set, is called with the time spent blocked in
	// RateLimiter.Acquire before a token became available.
	OnRateLimitWait func(time.Duration)
}

// NewKISClient builds a client with a pooled keep-alive transport and a
// pre-configured rate limiter. It does not connect to anything until the
// first call.
func NewKISClient(cfg KISConfig) *KISClient {
	tr := liveTRIDs
	mode := "live"
	if cfg.IsPaper {
		tr = paperTRIDs
		mode = "paper"
	}

	transport := &http.Transport{
		MaxIdleConns:        httpMaxIdleConns,
		MaxIdleConnsPerHost: httpMaxIdleConnsPerHost,
		MaxConnsPerHost:     httpMaxIdleConnsPerHost,
		IdleConnTimeout:     90 * time.Second,
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &KISClient{
		baseURL:   cfg.BaseURL,
		appKey:    cfg.AppKey,
		appSecret: cfg.AppSecret,
		accountNo: cfg.AccountNo,
		productCd: cfg.ProductCd,
		tr:        tr,
		http:      &http.Client{Transport: transport, Timeout: httpRequestTimeout},
		limiter:   NewRateLimiter(rateLimitRefillPerSec, rateLimitCapacity, cfg.OnRateLimitWait),
		tokens:    NewTokenCache(cfg.TokenCacheDir, mode),
		logger:    logger,
		onReconnect: cfg.OnReconnect,
		marketCloseAt: func() time.Time {
			now := time.Now()
			return time.Date(now.Year(), now.Month(), now.Day(), 15, 30, 0, 0, now.Location())
		},
	}
}

// PreWarm issues a single lightweight balance query before the first
// real order, to establish TCP/TLS and prime DNS (spec §4.3).
func (c *KISClient) PreWarm(ctx context.Context) error {
	_, err := c.InquireBalance(ctx)
	return err
}

func (c *KISClient) authHeader(ctx context.Context) (string, error) {
	tok, err := c.tokens.AccessToken(func() (string, time.Time, error) {
		return c.issueAccessToken(ctx)
	})
	if err != nil {
		return "", err
	}
	return "Bearer " + tok, nil
}

func (c *KISClient) issueAccessToken(ctx context.Context) (string, time.Time, error) {
	body, _ := json.Marshal(map[string]string{
		"grant_type": "client_credentials",
		"appkey":     c.appKey,
		"appsecret":  c.appSecret,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/oauth2/tokenP", bytes.NewReader(body))
	if err != nil {
		return "", time.Time{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", time.Time{}, err
	}
	defer resp.Body.Close()

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", time.Time{}, err
	}
	return out.AccessToken, time.Now().Add(time.Duration(out.ExpiresIn) * time.Second), nil
}

// doRequest performs a rate-limited, retried REST call. Retries on
// 429/5xx with exponential backoff, capped at httpMaxRetries (spec §4.3).
func (c *KISClient) doRequest(ctx context.Context, method, path, trID string, body []byte) ([]byte, error) {
	if !c.marketCloseAt().After(time.Now()) {
		return nil, errs.MarketClosed
	}

	if err := c.limiter.Acquire(ctx, rateLimitAcquireWait); err != nil {
		return nil, errs.New(errs.Transient, "broker.doRequest", "", fmt.Errorf("rate limit: %w", err))
	}

	auth, err := c.authHeader(ctx)
	if err != nil {
		return nil, err
	}

	var lastErr error
	backoff := 400 * time.Millisecond
	for attempt := 0; attempt <= httpMaxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
		req.Header.Set("authorization", auth)
		req.Header.Set("appkey", c.appKey)
		req.Header.Set("appsecret", c.appSecret)
		req.Header.Set("tr_id", trID)

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			time.Sleep(backoff)
			backoff *= 2
			continue
		}

		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			time.Sleep(backoff)
			backoff *= 2
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("broker: http %d: %s", resp.StatusCode, string(data))
			c.logger.Warn("kis request retrying", zap.Int("status", resp.StatusCode), zap.Int("attempt", attempt))
			time.Sleep(backoff)
			backoff *= 2
			continue
		}
		if resp.StatusCode >= 400 {
			return nil, errs.New(errs.BrokerLogical, "broker.doRequest", "", fmt.Errorf("http %d: %s", resp.StatusCode, string(data)))
		}

		return data, nil
	}

	return nil, errs.New(errs.Fatal, "broker.doRequest", "", fmt.Errorf("exhausted retries: %w", lastErr))
}

func (c *KISClient) IssueOrder(ctx context.Context, code string, side Side, qty int64, limitPrice float64, tif TimeInForce) (OrderAck, error) {
	ordDv := "01" // limit
	priceStr := strconv.FormatFloat(limitPrice, 'f', 0, 64)
	if limitPrice == 0 {
		ordDv = "01" // market orders still route through ORD_DVSN per KIS's TR shape; priceStr "0"
		priceStr = "0"
	}

	payload := map[string]string{
		"CANO":         c.accountNo,
		"ACNT_PRDT_CD": c.productCd,
		"PDNO":         code,
		"ORD_DVSN":     ordDv,
		"ORD_QTY":      strconv.FormatInt(qty, 10),
		"ORD_UNPR":     priceStr,
	}
	body, _ := json.Marshal(payload)
	data, err := c.doRequest(ctx, http.MethodPost, "/uapi/domestic-stock/v1/trading/order-cash", c.tr.order, body)
	if err != nil {
		return OrderAck{}, err
	}

	var out struct {
		RtCd string `json:"rt_cd"`
		Msg1 string `json:"msg1"`
		Output struct {
			OrderNo string `json:"ODNO"`
		} `json:"output"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return OrderAck{}, fmt.Errorf("broker: decode order response: %w", err)
	}

	return OrderAck{OrderID: out.Output.OrderNo, StatusCode: out.RtCd, Message: out.Msg1}, nil
}

func (c *KISClient) CancelOrder(ctx context.Context, orderID string) (OrderAck, error) {
	payload := map[string]string{
		"CANO":         c.accountNo,
		"ACNT_PRDT_CD": c.productCd,
		"KRX_FWDG_ORD_ORGNO": "",
		"ORGN_ODNO":    orderID,
		"RVSE_CNCL_DVSN_CD": "02", // cancel
		"ORD_QTY":      "0",
		"ORD_UNPR":     "0",
		"QTY_ALL_ORD_YN": "Y",
	}
	body, _ := json.Marshal(payload)
	data, err := c.doRequest(ctx, http.MethodPost, "/uapi/domestic-stock/v1/trading/order-rvsecncl", c.tr.orderCancel, body)
	if err != nil {
		return OrderAck{}, err
	}

	var out struct {
		RtCd string `json:"rt_cd"`
		Msg1 string `json:"msg1"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return OrderAck{}, fmt.Errorf("broker: decode cancel response: %w", err)
	}
	return OrderAck{OrderID: orderID, StatusCode: out.RtCd, Message: out.Msg1}, nil
}

func (c *KISClient) InquireBalance(ctx context.Context) (Balance, error) {
	path := fmt.Sprintf(
		"/uapi/domestic-stock/v1/trading/inquire-balance?CANO=%s&ACNT_PRDT_CD=%s&AFHR_FLPR_YN=N&OFL_YN=&INQR_DVSN=02&UNPR_DVSN=01&FUND_STTL_ICLD_YN=N&FNCG_AMT_AUTO_RDPT_YN=N&PRCS_DVSN=01&CTX_AREA_FK100=&CTX_AREA_NK100=",
		c.accountNo, c.productCd,
	)
	data, err := c.doRequest(ctx, http.MethodGet, path, c.tr.balance, nil)
	if err != nil {
		return Balance{}, err
	}

	var out struct {
		Output1 []struct {
			Pdno      string `json:"pdno"`
			HldgQty   string `json:"hldg_qty"`
			PchsAvgPr string `json:"pchs_avg_pric"`
			PrprPrice string `json:"prpr"`
		} `json:"output1"`
		Output2 []struct {
			DncaTotAmt  string `json:"dnca_tot_amt"`
			TotEvluAmt  string `json:"tot_evlu_amt"`
		} `json:"output2"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return Balance{}, fmt.Errorf("broker: decode balance response: %w", err)
	}

	bal := Balance{}
	for _, h := range out.Output1 {
		qty, _ := strconv.ParseInt(h.HldgQty, 10, 64)
		if qty == 0 {
			continue
		}
		avg, _ := strconv.ParseFloat(h.PchsAvgPr, 64)
		last, _ := strconv.ParseFloat(h.PrprPrice, 64)
		bal.Positions = append(bal.Positions, BalanceHolding{Code: h.Pdno, Quantity: qty, AveragePrice: avg, LastPrice: last})
	}
	if len(out.Output2) > 0 {
		bal.CashKRW, _ = strconv.ParseFloat(out.Output2[0].DncaTotAmt, 64)
		bal.TotalEvaluationKRW, _ = strconv.ParseFloat(out.Output2[0].TotEvluAmt, 64)
	}
	return bal, nil
}

func (c *KISClient) InquireOrderStatus(ctx context.Context, orderID string) (OrderStatusReport, error) {
	path := fmt.Sprintf(
		"/uapi/domestic-stock/v1/trading/inquire-daily-ccld?CANO=%s&ACNT_PRDT_CD=%s&ODNO=%s&INQR_DVSN_3=00",
		c.accountNo, c.productCd, orderID,
	)
	data, err := c.doRequest(ctx, http.MethodGet, path, c.tr.orderStatus, nil)
	if err != nil {
		return OrderStatusReport{}, err
	}

	var out struct {
		Output1 []struct {
			TotCcldQty string `json:"tot_ccld_qty"`
			RmnQty     string `json:"rmn_qty"`
			AvgPrvs    string `json:"avg_prvs"`
		} `json:"output1"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return OrderStatusReport{}, fmt.Errorf("broker: decode order status: %w", err)
	}
	if len(out.Output1) == 0 {
		return OrderStatusReport{Status: StatusUnknown}, nil
	}

	row := out.Output1[0]
	filled, _ := strconv.ParseInt(row.TotCcldQty, 10, 64)
	remaining, _ := strconv.ParseInt(row.RmnQty, 10, 64)
	avg, _ := strconv.ParseFloat(row.AvgPrvs, 64)

	status := StatusPending
	switch {
	case remaining == 0 && filled > 0:
		status = StatusFilled
	case filled > 0 && remaining > 0:
		status = StatusPartial
	}

	return OrderStatusReport{FilledQty: filled, RemainingQty: remaining, AvgFillPrice: avg, Status: status}, nil
}

func (c *KISClient) InquireMinuteBars(ctx context.Context, code string, intervalMinutes int, endHHMMSS string, count int) ([]MinuteBar, error) {
	path := fmt.Sprintf(
		"/uapi/domestic-stock/v1/quotations/inquire-time-itemchartprice?FID_ETC_CLS_CODE=&FID_COND_MRKT_DIV_CODE=J&FID_INPUT_ISCD=%s&FID_INPUT_HOUR_1=%s&FID_PW_DATA_INCU_YN=Y",
		code, endHHMMSS,
	)
	data, err := c.doRequest(ctx, http.MethodGet, path, c.tr.minuteBars, nil)
	if err != nil {
		return nil, err
	}

	var out struct {
		Output2 []struct {
			Time  string `json:"stck_cntg_hour"`
			Open  string `json:"stck_oprc"`
			High  string `json:"stck_hgpr"`
			Low   string `json:"stck_lwpr"`
			Close string `json:"stck_prpr"`
			Vol   string `json:"cntg_vol"`
		} `json:"output2"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("broker: decode minute bars: %w", err)
	}

	n := count
	if n > len(out.Output2) {
		n = len(out.Output2)
	}
	bars := make([]MinuteBar, 0, n)
	for i := 0; i < n; i++ {
		row := out.Output2[i]
		o, _ := strconv.ParseFloat(row.Open, 64)
		h, _ := strconv.ParseFloat(row.High, 64)
		l, _ := strconv.ParseFloat(row.Low, 64)
		cl, _ := strconv.ParseFloat(row.Close, 64)
		v, _ := strconv.ParseInt(row.Vol, 10, 64)
		bars = append(bars, MinuteBar{Open: o, High: h, Low: l, Close: cl, Volume: v})
	}
	return bars, nil
}

func (c *KISClient) ensureFeed(ctx context.Context, wsURL string) *kisFeed {
	c.feedOnce.Do(func() {
		approval, err := c.tokens.WebsocketApproval(func() (string, error) {
			return c.issueWebsocketApproval(ctx)
		})
		if err != nil {
			c.logger.Error("websocket approval failed", zap.Error(err))
		}
		c.feed = newKisFeed(wsURL, approval, c.logger, func(reason string) {
			c.logger.Error("websocket reconnect exhausted, halting market data", zap.String("reason", reason))
		})
		c.feed.onReconnect = c.onReconnect
		go c.feed.Run(ctx)
	})
	return c.feed
}

func (c *KISClient) issueWebsocketApproval(ctx context.Context) (string, error) {
	body, _ := json.Marshal(map[string]string{
		"grant_type": "client_credentials",
		"appkey":     c.appKey,
		"secretkey":  c.appSecret,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/oauth2/Approval", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out struct {
		ApprovalKey string `json:"approval_key"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.ApprovalKey, nil
}

func (c *KISClient) SubscribeTrade(ctx context.Context, code string) (<-chan Trade, error) {
	feed := c.ensureFeed(ctx, c.websocketURL())
	return feed.subscribeTrade(code), nil
}

func (c *KISClient) SubscribeQuote(ctx context.Context, code string) (<-chan Quote, error) {
	feed := c.ensureFeed(ctx, c.websocketURL())
	return feed.subscribeQuote(code), nil
}

func (c *KISClient) TickSpeed(code string) int {
	if c.feed == nil {
		return 0
	}
	return c.feed.tickSpeed(code)
}

func (c *KISClient) websocketURL() string {
	if c.baseURL == "https://openapivts.koreainvestment.com:29443" {
		return "ws://ops.koreainvestment.com:31000"
	}
	return "ws://ops.koreainvestment.com:21000"
}
