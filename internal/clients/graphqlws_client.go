package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/whalewatch/internal/domain"
)

const (
	graphqlWSSubprotocol = "graphql-transport-ws"

	msgConnectionInit = "connection_init"
	msgConnectionAck  = "connection_ack"
	msgSubscribe      = "subscribe"
	msgNext           = "next"
	msgError          = "error"
	msgComplete       = "complete"
	msgPing           = "ping"
	msgPong           = "pong"

	defaultAckTimeout   = 10 * time.Second
	defaultWriteTimeout = 5 * time.Second
	subscriptionID      = "1"
)

const tradesQueryTemplate = `subscription {
  EVM(network: %s) {
    General: DEXTradeByTokens(where: {Trade: {Currency: {SmartContract: {is: "%s"}}}}) {
      Block { Time }
      Trade { Amount Price Currency { Symbol } PriceInUSD }
    }
  }
}`

// TradesQuery builds the DEX trades subscription for a token on the given network.
func TradesQuery(network, token string) string {
	return fmt.Sprintf(tradesQueryTemplate, network, token)
}

type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type nextPayload struct {
	Data   map[string]map[string]json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type tradeRow struct {
	Block struct {
		Time time.Time `json:"Time"`
	} `json:"Block"`
	Trade struct {
		Amount   decimal.Decimal `json:"Amount"`
		Price    decimal.Decimal `json:"Price"`
		Currency struct {
			Symbol string `json:"Symbol"`
		} `json:"Currency"`
		PriceInUSD decimal.Decimal `json:"PriceInUSD"`
	} `json:"Trade"`
}

// GraphQLWSFeed opens GraphQL subscriptions over the graphql-transport-ws protocol.
type GraphQLWSFeed struct {
	url        string
	token      string
	dialer     *websocket.Dialer
	ackTimeout time.Duration
	l          *zap.Logger
}

func NewGraphQLWSFeed(url, token string, l *zap.Logger) *GraphQLWSFeed {
	return &GraphQLWSFeed{
		url:   url,
		token: token,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 30 * time.Second,
			Subprotocols:     []string{graphqlWSSubprotocol},
			Proxy:            http.ProxyFromEnvironment,
		},
		ackTimeout: defaultAckTimeout,
		l:          l,
	}
}

// Subscribe connects, performs the init handshake and starts the subscription.
func (f *GraphQLWSFeed) Subscribe(ctx context.Context, query string) (*Subscription, error) {
	header := http.Header{}
	if f.token != "" {
		header.Set("Authorization", "Bearer "+f.token)
	}

	conn, _, err := f.dialer.DialContext(ctx, f.url, header)
	if err != nil {
		return nil, errors.Wrapf(err, "dial feed %s", f.url)
	}

	if err := f.handshake(conn); err != nil {
		conn.Close()
		return nil, err
	}

	payload, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "marshal subscribe payload")
	}
	if err := writeMessage(conn, wsMessage{ID: subscriptionID, Type: msgSubscribe, Payload: payload}); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "send subscribe")
	}

	s := &Subscription{
		conn: conn,
		msgs: make(chan domain.FeedMessage),
		done: make(chan struct{}),
		l:    f.l,
	}
	s.wg.Add(1)
	go s.readLoop(ctx)

	f.l.Info("feed subscription started", zap.String("url", f.url))

	return s, nil
}

func (f *GraphQLWSFeed) handshake(conn *websocket.Conn) error {
	if err := writeMessage(conn, wsMessage{Type: msgConnectionInit, Payload: json.RawMessage(`{}`)}); err != nil {
		return errors.Wrap(err, "send connection_init")
	}

	if err := conn.SetReadDeadline(time.Now().Add(f.ackTimeout)); err != nil {
		return errors.Wrap(err, "set ack deadline")
	}
	defer conn.SetReadDeadline(time.Time{})

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return errors.Wrap(err, "wait for connection_ack")
		}
		switch msg.Type {
		case msgConnectionAck:
			return nil
		case msgPing:
			if err := writeMessage(conn, wsMessage{Type: msgPong}); err != nil {
				return errors.Wrap(err, "send pong")
			}
		default:
			return errors.Errorf("unexpected message %q before connection_ack", msg.Type)
		}
	}
}

// Subscription is a live feed. Messages is closed when the server completes
// the subscription, the connection drops or Close is called.
type Subscription struct {
	conn      *websocket.Conn
	msgs      chan domain.FeedMessage
	done      chan struct{}
	closeOnce sync.Once
	writeMu   sync.Mutex
	wg        sync.WaitGroup
	l         *zap.Logger
}

func (s *Subscription) Messages() <-chan domain.FeedMessage {
	return s.msgs
}

// Close completes the subscription and releases the connection. Safe to call more than once.
func (s *Subscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)

		s.writeMu.Lock()
		if werr := writeMessage(s.conn, wsMessage{ID: subscriptionID, Type: msgComplete}); werr != nil {
			s.l.Debug("send complete", zap.Error(werr))
		}
		s.writeMu.Unlock()

		err = s.conn.Close()
		s.wg.Wait()
	})
	return err
}

func (s *Subscription) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.msgs)

	for {
		var msg wsMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			if s.closing() {
				return
			}
			s.deliver(ctx, domain.FeedMessage{Err: errors.Wrap(err, "read feed")})
			return
		}

		switch msg.Type {
		case msgNext:
			trades, err := decodeTrades(msg.Payload, s.l)
			if err != nil {
				if !s.deliver(ctx, domain.FeedMessage{Err: err}) {
					return
				}
				continue
			}
			if !s.deliver(ctx, domain.FeedMessage{Trades: trades}) {
				return
			}
		case msgError:
			if !s.deliver(ctx, domain.FeedMessage{Err: errors.Errorf("subscription error: %s", string(msg.Payload))}) {
				return
			}
		case msgComplete:
			s.l.Info("feed subscription completed by server")
			return
		case msgPing:
			s.writeMu.Lock()
			err := writeMessage(s.conn, wsMessage{Type: msgPong})
			s.writeMu.Unlock()
			if err != nil {
				s.l.Warn("send pong", zap.Error(err))
			}
		case msgPong:
		default:
			s.l.Debug("ignoring feed message", zap.String("type", msg.Type))
		}
	}
}

// deliver reports false when the consumer is gone.
func (s *Subscription) deliver(ctx context.Context, m domain.FeedMessage) bool {
	select {
	case s.msgs <- m:
		return true
	case <-s.done:
		return false
	case <-ctx.Done():
		return false
	}
}

func (s *Subscription) closing() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func writeMessage(conn *websocket.Conn, msg wsMessage) error {
	if err := conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(msg)
}

// decodeTrades flattens every data.<root>.<field>[] list into trade records.
// Rows that fail to decode or validate are dropped.
func decodeTrades(raw json.RawMessage, l *zap.Logger) ([]domain.TradeRecord, error) {
	var payload nextPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, errors.Wrap(err, "decode next payload")
	}
	if len(payload.Errors) > 0 && len(payload.Data) == 0 {
		return nil, errors.Errorf("subscription error: %s", payload.Errors[0].Message)
	}

	roots := make([]string, 0, len(payload.Data))
	for root := range payload.Data {
		roots = append(roots, root)
	}
	sort.Strings(roots)

	var trades []domain.TradeRecord
	for _, root := range roots {
		fields := payload.Data[root]
		names := make([]string, 0, len(fields))
		for name := range fields {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			var rows []json.RawMessage
			if err := json.Unmarshal(fields[name], &rows); err != nil {
				l.Debug("skipping non-list field", zap.String("field", root+"."+name))
				continue
			}
			for _, r := range rows {
				var row tradeRow
				if err := json.Unmarshal(r, &row); err != nil {
					l.Warn("dropping malformed trade row", zap.Error(err))
					continue
				}
				trade := domain.TradeRecord{
					Time:           row.Block.Time,
					Amount:         row.Trade.Amount,
					Price:          row.Trade.Price,
					CurrencySymbol: row.Trade.Currency.Symbol,
					PriceInUSD:     row.Trade.PriceInUSD,
				}
				if err := trade.Validate(); err != nil {
					l.Warn("dropping invalid trade row", zap.Error(err))
					continue
				}
				trades = append(trades, trade)
			}
		}
	}

	return trades, nil
}
