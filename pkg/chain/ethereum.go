package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/signbook/signbook/pkg/book"
	"github.com/signbook/signbook/pkg/crypto"
)

// Hand-declared fragments of the ERC20 and settlement contract ABIs;
// only the entry points the book needs.
const erc20ABIJSON = `[
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"_account","type":"address"}],"outputs":[{"name":"_balance","type":"uint256"}]},
	{"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"_account","type":"address"},{"name":"_spender","type":"address"}],"outputs":[{"name":"_allowance","type":"uint256"}]},
	{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"_spender","type":"address"},{"name":"_amount","type":"uint256"}],"outputs":[{"name":"_success","type":"bool"}]}
]`

const settlementABIJSON = `[
	{"type":"function","name":"executedBookAmounts","stateMutability":"view","inputs":[{"name":"_orderId","type":"bytes32"}],"outputs":[{"name":"_executedBookAmounts","type":"uint256"}]},
	{"type":"function","name":"generateOrderId","stateMutability":"view","inputs":[{"name":"_bookToken","type":"address"},{"name":"_execToken","type":"address"},{"name":"_bookAmount","type":"uint256"},{"name":"_execAmount","type":"uint256"},{"name":"_maker","type":"address"},{"name":"_salt","type":"uint256"}],"outputs":[{"name":"_orderId","type":"bytes32"}]},
	{"type":"function","name":"checkOrderExecution","stateMutability":"view","inputs":[{"name":"_bookToken","type":"address"},{"name":"_execToken","type":"address"},{"name":"_bookAmount","type":"uint256"},{"name":"_execAmount","type":"uint256"},{"name":"_maker","type":"address"},{"name":"_salt","type":"uint256"},{"name":"_requiredBookAmount","type":"uint256"}],"outputs":[{"name":"_totalExecAmount","type":"uint256"}]},
	{"type":"function","name":"checkOrdersExecution","stateMutability":"view","inputs":[{"name":"_bookToken","type":"address"},{"name":"_execToken","type":"address"},{"name":"_bookAmounts","type":"uint256[]"},{"name":"_execAmounts","type":"uint256[]"},{"name":"_makers","type":"address[]"},{"name":"_salts","type":"uint256[]"},{"name":"_lastRequiredBookAmount","type":"uint256"}],"outputs":[{"name":"_totalExecAmount","type":"uint256"}]},
	{"type":"function","name":"executeOrder","stateMutability":"payable","inputs":[{"name":"_bookToken","type":"address"},{"name":"_execToken","type":"address"},{"name":"_bookAmount","type":"uint256"},{"name":"_execAmount","type":"uint256"},{"name":"_maker","type":"address"},{"name":"_salt","type":"uint256"},{"name":"_signature","type":"bytes"},{"name":"_requiredBookAmount","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"executeOrders","stateMutability":"payable","inputs":[{"name":"_bookToken","type":"address"},{"name":"_execToken","type":"address"},{"name":"_bookAmounts","type":"uint256[]"},{"name":"_execAmounts","type":"uint256[]"},{"name":"_makers","type":"address[]"},{"name":"_salts","type":"uint256[]"},{"name":"_signatures","type":"bytes"},{"name":"_lastRequiredBookAmount","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"cancelOrder","stateMutability":"nonpayable","inputs":[{"name":"_bookToken","type":"address"},{"name":"_execToken","type":"address"},{"name":"_bookAmount","type":"uint256"},{"name":"_execAmount","type":"uint256"},{"name":"_salt","type":"uint256"}],"outputs":[]}
]`

// Client talks to a real chain over JSON-RPC. Reads are bounded by
// cfg timeout and retried; writes are submitted once and left to the
// caller to reconcile.
type Client struct {
	eth        *ethclient.Client
	settlement common.Address
	erc20      abi.ABI
	contract   abi.ABI

	signer  *crypto.Signer // transaction key; nil for read-only clients
	chainID *big.Int

	timeout time.Duration
	retries int
	log     *zap.SugaredLogger
}

// Dial connects to rpcURL. signer may be nil when no writes are needed.
func Dial(rpcURL string, settlement common.Address, chainID int64, signer *crypto.Signer, timeout time.Duration, retries int, log *zap.SugaredLogger) (*Client, error) {
	eth, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrUnavailable, rpcURL, err)
	}
	erc20, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse erc20 abi: %w", err)
	}
	contract, err := abi.JSON(strings.NewReader(settlementABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse settlement abi: %w", err)
	}
	return &Client{
		eth:        eth,
		settlement: settlement,
		erc20:      erc20,
		contract:   contract,
		signer:     signer,
		chainID:    big.NewInt(chainID),
		timeout:    timeout,
		retries:    retries,
		log:        log,
	}, nil
}

func (c *Client) SettlementAddress() common.Address { return c.settlement }

func (c *Client) BalanceOf(ctx context.Context, token, account common.Address) (*big.Int, error) {
	out, err := c.view(ctx, token, c.erc20, "balanceOf", account)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

func (c *Client) Allowance(ctx context.Context, token, account, spender common.Address) (*big.Int, error) {
	out, err := c.view(ctx, token, c.erc20, "allowance", account, spender)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

func (c *Client) DeriveOrderID(ctx context.Context, bookToken, execToken common.Address, bookAmount, execAmount *big.Int, maker common.Address, salt *big.Int) (common.Hash, error) {
	out, err := c.view(ctx, c.settlement, c.contract, "generateOrderId", bookToken, execToken, bookAmount, execAmount, maker, salt)
	if err != nil {
		return common.Hash{}, err
	}
	return common.Hash(out[0].([32]byte)), nil
}

// RecoverSigner is computed locally; signature recovery needs no RPC.
func (c *Client) RecoverSigner(ctx context.Context, hash common.Hash, signature []byte) (common.Address, error) {
	return crypto.RecoverOrderSigner(hash, signature)
}

func (c *Client) ExecutedBookAmount(ctx context.Context, orderID common.Hash) (*big.Int, error) {
	out, err := c.view(ctx, c.settlement, c.contract, "executedBookAmounts", orderID)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

func (c *Client) CheckOrderExecution(ctx context.Context, o *book.Order, requiredBookAmount *big.Int) (*big.Int, error) {
	out, err := c.view(ctx, c.settlement, c.contract, "checkOrderExecution",
		o.BookToken, o.ExecToken, o.BookAmount, o.ExecAmount, o.Maker, o.Salt, requiredBookAmount)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

func (c *Client) CheckOrdersExecution(ctx context.Context, plan *book.PreparedExecution) (*big.Int, error) {
	out, err := c.view(ctx, c.settlement, c.contract, "checkOrdersExecution",
		plan.BookToken, plan.ExecToken, plan.BookAmounts, plan.ExecAmounts, plan.Makers, plan.Salts, plan.LastRequiredBookAmount)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

func (c *Client) Approve(ctx context.Context, token common.Address, amount *big.Int, opts *SendOptions) (common.Hash, error) {
	data, err := c.erc20.Pack("approve", c.settlement, amount)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack approve: %w", err)
	}
	return c.transact(ctx, token, data, nil, gasLimit(opts, approveGas))
}

func (c *Client) Settle(ctx context.Context, plan *book.PreparedExecution, value *big.Int, opts *SendOptions) (common.Hash, error) {
	var (
		data []byte
		err  error
		gas  uint64
	)
	if len(plan.OrderIDs) == 1 {
		data, err = c.contract.Pack("executeOrder",
			plan.BookToken, plan.ExecToken, plan.BookAmounts[0], plan.ExecAmounts[0],
			plan.Makers[0], plan.Salts[0], plan.Signatures[0], plan.LastRequiredBookAmount)
		gas = gasLimit(opts, executeGasPerOrder)
	} else {
		// the contract takes the makers' signatures concatenated
		var signatures []byte
		for _, sig := range plan.Signatures {
			signatures = append(signatures, sig...)
		}
		data, err = c.contract.Pack("executeOrders",
			plan.BookToken, plan.ExecToken, plan.BookAmounts, plan.ExecAmounts,
			plan.Makers, plan.Salts, signatures, plan.LastRequiredBookAmount)
		gas = gasLimit(opts, uint64(len(plan.OrderIDs))*executeGasPerOrder+executeGasBase)
	}
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack settlement: %w", err)
	}
	return c.transact(ctx, c.settlement, data, value, gas)
}

func (c *Client) Cancel(ctx context.Context, o *book.Order, opts *SendOptions) (common.Hash, error) {
	data, err := c.contract.Pack("cancelOrder", o.BookToken, o.ExecToken, o.BookAmount, o.ExecAmount, o.Salt)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack cancel: %w", err)
	}
	return c.transact(ctx, c.settlement, data, nil, gasLimit(opts, cancelGasPerOrder+cancelGasBase))
}

var _ Chain = (*Client)(nil)

// view performs a retried eth_call against a contract.
func (c *Client) view(ctx context.Context, to common.Address, contract abi.ABI, method string, args ...any) ([]any, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	var raw []byte
	err = withRetries(ctx, c.retries, c.timeout, func(ctx context.Context) error {
		var callErr error
		raw, callErr = c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, method, err)
	}

	out, err := contract.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	return out, nil
}

// transact signs and submits a state-changing call. Not retried: writes
// are not idempotent, the caller reconciles afterwards.
func (c *Client) transact(ctx context.Context, to common.Address, data []byte, value *big.Int, gas uint64) (common.Hash, error) {
	if c.signer == nil {
		return common.Hash{}, fmt.Errorf("no signing key configured")
	}
	if value == nil {
		value = new(big.Int)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	nonce, err := c.eth.PendingNonceAt(callCtx, c.signer.Address())
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: nonce: %v", ErrUnavailable, err)
	}
	gasPrice, err := c.eth.SuggestGasPrice(callCtx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: gas price: %v", ErrUnavailable, err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &to,
		Value:    value,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.signer.ECDSA())
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}
	if err := c.eth.SendTransaction(callCtx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("%w: send: %v", ErrUnavailable, err)
	}

	c.log.Infow("transaction_sent", "tx", signed.Hash().Hex(), "to", to.Hex(), "gas", gas)
	return signed.Hash(), nil
}

func gasLimit(opts *SendOptions, fallback uint64) uint64 {
	if opts != nil && opts.GasLimit > 0 {
		return opts.GasLimit
	}
	return fallback
}
