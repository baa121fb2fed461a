package store

import (
	"encoding/json"
	"sort"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"

	"github.com/tradebot/riskcore/internal/domain"
)

// ErrOrderNotFound 归档中不存在该订单。
var ErrOrderNotFound = errors.New("store: order not found")

const orderKeyPrefix = "order/"

// OrderArchive 终态订单归档（badger，JSON 值）。
// 实现 execution.Archiver。
type OrderArchive struct {
	db *badger.DB
}

// OpenOrderArchive 打开归档库。
func OpenOrderArchive(path string) (*OrderArchive, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "open badger")
	}
	return &OrderArchive{db: db}, nil
}

// Close 关闭底层库。
func (a *OrderArchive) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}

// Archive 写入（或覆盖）一条订单快照。
func (a *OrderArchive) Archive(order domain.Order) error {
	if order.OrderID == "" {
		return errors.New("store: empty order id")
	}
	raw, err := json.Marshal(order)
	if err != nil {
		return errors.Wrap(err, "marshal order")
	}
	err = a.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(orderKeyPrefix+order.OrderID), raw)
	})
	return errors.Wrap(err, "archive order")
}

// Get 取一条归档订单。不存在返回 ErrOrderNotFound。
func (a *OrderArchive) Get(orderID string) (domain.Order, error) {
	var order domain.Order
	err := a.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(orderKeyPrefix + orderID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrOrderNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &order)
		})
	})
	if err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// Recent 按更新时间倒序取最近 n 条归档订单。
func (a *OrderArchive) Recent(n int) ([]domain.Order, error) {
	if n <= 0 {
		n = 50
	}
	var out []domain.Order
	err := a.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(orderKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var order domain.Order
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &order)
			})
			if err != nil {
				return err
			}
			out = append(out, order)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan orders")
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}
