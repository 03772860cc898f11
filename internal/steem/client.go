package steem

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/steemit/hivemind-indexer/pkg/config"
	"github.com/steemit/hivemind-indexer/pkg/logging"
	"github.com/steemit/hivemind-indexer/pkg/normalize"
	"github.com/steemit/hivemind-indexer/pkg/telemetry"
)

// Block is a fetched block with its regular and virtual operations
type Block struct {
	Num          int64
	ID           string
	Previous     string
	Timestamp    time.Time
	Transactions int
	Operations   []interface{}
	VirtualOps   []interface{}
}

type rawBlock struct {
	Previous     string `json:"previous"`
	Timestamp    string `json:"timestamp"`
	BlockID      string `json:"block_id"`
	Transactions []struct {
		Operations []interface{} `json:"operations"`
	} `json:"transactions"`
}

type rawVirtualOp struct {
	Op interface{} `json:"op"`
}

// Client wraps the Steem RPC client
type Client struct {
	rpc        *RPCClient
	maxBatch   int
	maxWorkers int
	logger     *zap.Logger
}

// New creates a new Steem client
func New(cfg *config.SteemConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("steemd_url is required")
	}

	logger := logging.WithComponent("steem-client")

	client := &Client{
		rpc:        NewRPCClient(cfg.URL, cfg.Timeout, logger),
		maxBatch:   cfg.MaxBatch,
		maxWorkers: cfg.MaxWorkers,
		logger:     logger,
	}
	if client.maxBatch <= 0 {
		client.maxBatch = 50
	}
	if client.maxWorkers <= 0 {
		client.maxWorkers = 1
	}

	logger.Info("Steem client initialized", zap.String("url", cfg.URL))

	return client, nil
}

// GetBlocks fetches blocks [from, to] with their virtual operations. The
// range is split into chunks of maxBatch fetched by up to maxWorkers
// concurrent requests; the result is in block order.
func (c *Client) GetBlocks(ctx context.Context, from, to int64) ([]*Block, error) {
	ctx, span := telemetry.StartSpan(ctx, "steem.get_blocks")
	defer span.End()

	if to < from {
		return nil, fmt.Errorf("invalid range: to (%d) < from (%d)", to, from)
	}

	blocks := make([]*Block, to-from+1)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxWorkers)

	for start := from; start <= to; start += int64(c.maxBatch) {
		end := start + int64(c.maxBatch) - 1
		if end > to {
			end = to
		}
		g.Go(func() error {
			chunk, err := c.getBlocksRange(gctx, start, end)
			if err != nil {
				return err
			}
			copy(blocks[start-from:], chunk)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return blocks, nil
}

func (c *Client) getBlocksRange(ctx context.Context, from, to int64) ([]*Block, error) {
	count := int(to - from + 1)

	blockReqs := make([]RPCRequest, 0, count)
	opsReqs := make([]RPCRequest, 0, count)
	for i := from; i <= to; i++ {
		id := int(i - from + 1)
		blockReqs = append(blockReqs, RPCRequest{
			JSONRPC: "2.0",
			ID:      id,
			Method:  "block_api.get_block",
			Params:  map[string]interface{}{"block_num": i},
		})
		opsReqs = append(opsReqs, RPCRequest{
			JSONRPC: "2.0",
			ID:      id,
			Method:  "condenser_api.get_ops_in_block",
			Params:  []interface{}{i, true},
		})
	}

	blockResps, err := c.rpc.CallBatch(ctx, blockReqs)
	if err != nil {
		return nil, fmt.Errorf("failed to get blocks range %d-%d: %w", from, to, err)
	}
	opsResps, err := c.rpc.CallBatch(ctx, opsReqs)
	if err != nil {
		return nil, fmt.Errorf("failed to get virtual ops %d-%d: %w", from, to, err)
	}

	blocks := make([]*Block, 0, count)
	for i := range blockResps {
		num := from + int64(i)
		block, err := parseBlock(num, blockResps[i])
		if err != nil {
			return nil, err
		}

		if opsResps[i].Error != nil {
			return nil, fmt.Errorf("failed to get virtual ops of block %d: %w", num, opsResps[i].Error)
		}
		var vops []rawVirtualOp
		if err := decodeResult(opsResps[i].Result, &vops); err != nil {
			return nil, fmt.Errorf("failed to unmarshal virtual ops of block %d: %w", num, err)
		}
		for _, v := range vops {
			block.VirtualOps = append(block.VirtualOps, v.Op)
		}

		blocks = append(blocks, block)
	}

	return blocks, nil
}

func parseBlock(num int64, resp RPCResponse) (*Block, error) {
	if resp.Error != nil {
		return nil, fmt.Errorf("failed to get block %d: %w", num, resp.Error)
	}

	var envelope struct {
		Block *rawBlock `json:"block"`
	}
	if err := decodeResult(resp.Result, &envelope); err != nil {
		return nil, fmt.Errorf("failed to unmarshal block %d: %w", num, err)
	}
	if envelope.Block == nil {
		return nil, fmt.Errorf("block %d not available", num)
	}

	ts, err := normalize.ParseTime(envelope.Block.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("block %d: %w", num, err)
	}

	block := &Block{
		Num:          num,
		ID:           envelope.Block.BlockID,
		Previous:     envelope.Block.Previous,
		Timestamp:    ts,
		Transactions: len(envelope.Block.Transactions),
	}
	for _, tx := range envelope.Block.Transactions {
		block.Operations = append(block.Operations, tx.Operations...)
	}
	return block, nil
}

// GetDynamicGlobalProperties fetches dynamic global properties
func (c *Client) GetDynamicGlobalProperties(ctx context.Context) (map[string]interface{}, error) {
	ctx, span := telemetry.StartSpan(ctx, "steem.get_dynamic_global_properties")
	defer span.End()

	result, err := c.rpc.Call(ctx, "database_api", "get_dynamic_global_properties", map[string]interface{}{})
	if err != nil {
		return nil, fmt.Errorf("failed to get dynamic global properties: %w", err)
	}

	var props map[string]interface{}
	if err := decodeResult(result, &props); err != nil {
		return nil, fmt.Errorf("failed to unmarshal properties: %w", err)
	}

	return props, nil
}

// LastIrreversible returns the last irreversible block number
func (c *Client) LastIrreversible(ctx context.Context) (int64, error) {
	return c.globalNumber(ctx, "last_irreversible_block_num")
}

func (c *Client) globalNumber(ctx context.Context, key string) (int64, error) {
	props, err := c.GetDynamicGlobalProperties(ctx)
	if err != nil {
		return 0, err
	}

	v, ok := props[key]
	if !ok {
		return 0, fmt.Errorf("%s not found in properties", key)
	}
	return toInt64(v)
}

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case json.Number:
		return n.Int64()
	case float64:
		return int64(n), nil
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected number type %T", v)
	}
}
