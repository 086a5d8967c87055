// Package dispatch executes parsed commands and owns the reply policy:
// every outcome, success or failure, becomes a user message plus a log
// entry here and nowhere else.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/congo-pay/safetext/internal/command"
	"github.com/congo-pay/safetext/internal/dedupe"
	"github.com/congo-pay/safetext/internal/funding"
	"github.com/congo-pay/safetext/internal/identity"
	"github.com/congo-pay/safetext/internal/logging"
	"github.com/congo-pay/safetext/internal/messages"
	"github.com/congo-pay/safetext/internal/metrics"
	"github.com/congo-pay/safetext/internal/notification"
	"github.com/congo-pay/safetext/internal/payments"
	"github.com/congo-pay/safetext/internal/wallet"
)

// Directory registers and resolves users.
type Directory interface {
	RegisterIfNeeded(ctx context.Context, phone string) (identity.Registration, error)
	Lookup(ctx context.Context, phone string) (identity.User, error)
}

// Balances reads account balances.
type Balances interface {
	NativeBalance(ctx context.Context, address common.Address) (wallet.Balance, error)
	TokenBalance(ctx context.Context, address common.Address) (wallet.Balance, error)
}

// Minter credits test tokens.
type Minter interface {
	Mint(ctx context.Context, input funding.MintInput) (funding.MintResult, error)
}

// Transferrer relays Safe transfers.
type Transferrer interface {
	Transfer(ctx context.Context, input payments.TransferInput) (payments.TransferResult, error)
}

// Deps groups the services a Dispatcher drives. Claims may be nil.
type Deps struct {
	Directory   Directory
	Balances    Balances
	Minter      Minter
	Transferrer Transferrer
	Notifier    notification.Notifier
	Claims      dedupe.Store
}

// Options bounds command execution.
type Options struct {
	// Timeout caps every external call made for one message.
	Timeout time.Duration
	// ClaimTTL is how long a processed message id stays claimed.
	ClaimTTL time.Duration
}

const (
	defaultTimeout  = 3 * time.Minute
	defaultClaimTTL = 24 * time.Hour
)

// Dispatcher turns one inbound message into chain work and replies.
type Dispatcher struct {
	deps    Deps
	replies Replies
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New builds a dispatcher. Zero options fall back to defaults.
func New(deps Deps, replies Replies, opts Options, logger *slog.Logger, m *metrics.Metrics) *Dispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.ClaimTTL <= 0 {
		opts.ClaimTTL = defaultClaimTTL
	}
	if logger == nil {
		logger = logging.Discard()
	}
	if deps.Notifier == nil {
		deps.Notifier = notification.NewLoggerNotifier(logger)
	}
	return &Dispatcher{deps: deps, replies: replies, opts: opts, logger: logger, metrics: m}
}

// outcome is the typed result of one command.
type outcome struct {
	status  string
	replies []string
	err     error
}

func ok(replies ...string) outcome {
	return outcome{status: metrics.OutcomeOK, replies: replies}
}

func rejected(reply string) outcome {
	return outcome{status: metrics.OutcomeRejected, replies: []string{reply}}
}

func failed(err error, reply string) outcome {
	return outcome{status: metrics.OutcomeFailed, replies: []string{reply}, err: err}
}

func claimKey(id int64) string {
	return "msg:" + strconv.FormatInt(id, 10)
}

// Handle executes the command in msg and replies to its sender. The
// returned error is informational; replies have already been sent.
func (d *Dispatcher) Handle(ctx context.Context, msg messages.Message) error {
	cmd := command.Parse(msg.Text)
	if cmd.Kind == command.Unrecognized {
		return nil
	}
	if msg.Phone == "" {
		d.logger.Warn("message has no sender, ignoring", "message_id", msg.ID, "command", cmd.Kind.String())
		return nil
	}
	logger := d.logger.With("phone", msg.Phone, "message_id", msg.ID, "command", cmd.Kind.String())

	if d.deps.Claims != nil {
		claimed, err := d.deps.Claims.Claim(ctx, claimKey(msg.ID), msg.Phone, d.opts.ClaimTTL)
		switch {
		case err != nil:
			logger.Warn("message claim unavailable, dispatching anyway", "error", err)
		case !claimed:
			logger.Info("message already handled")
			d.metrics.Dispatched(cmd.Kind.String(), metrics.OutcomeDuplicate, 0)
			return nil
		}
	}

	start := time.Now()
	execCtx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	out := d.run(execCtx, msg.Phone, cmd)
	cancel()
	elapsed := time.Since(start)
	d.metrics.Dispatched(cmd.Kind.String(), out.status, elapsed)

	for _, body := range out.replies {
		d.reply(ctx, msg.Phone, body)
	}

	if out.err != nil {
		logger.Error("command failed", "error", out.err, "elapsed", elapsed)
		return fmt.Errorf("%s: %w", cmd.Kind, out.err)
	}
	logger.Info("command handled", "outcome", out.status, "elapsed", elapsed)
	return nil
}

func (d *Dispatcher) reply(ctx context.Context, phone, body string) {
	err := d.deps.Notifier.Send(ctx, notification.Message{
		Kind:        notification.KindReply,
		Destination: phone,
		Body:        body,
	})
	if err != nil {
		d.metrics.ReplyFailed()
		d.logger.Warn("reply not delivered", "phone", phone, "error", err)
	}
}

// ErrPanic wraps a panic recovered while executing a command.
var ErrPanic = errors.New("command panicked")

// run executes cmd, turning a panic into a failed outcome so one message
// can never take the poller down.
func (d *Dispatcher) run(ctx context.Context, phone string, cmd command.Command) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("command panicked", "phone", phone, "command", cmd.Kind.String(), "panic", r, "stack", string(debug.Stack()))
			out = failed(fmt.Errorf("%w: %v", ErrPanic, r), d.failureReply(cmd.Kind))
		}
	}()
	return d.execute(ctx, phone, cmd)
}

// failureReply is the generic reply for an unexpected failure of kind.
func (d *Dispatcher) failureReply(kind command.Kind) string {
	switch kind {
	case command.Register:
		return d.replies.RegistrationFailed()
	case command.NativeBalance:
		return d.replies.BalanceFailed(d.replies.NativeSymbol)
	case command.TokenBalance:
		return d.replies.BalanceFailed(d.replies.TokenSymbol)
	case command.Mint:
		return d.replies.MintFailed()
	default:
		return d.replies.TransferFailed()
	}
}

func (d *Dispatcher) execute(ctx context.Context, phone string, cmd command.Command) outcome {
	switch cmd.Kind {
	case command.Register:
		return d.register(ctx, phone)
	case command.NativeBalance, command.TokenBalance:
		return d.balance(ctx, phone, cmd.Kind)
	case command.Mint:
		return d.mint(ctx, phone, cmd)
	case command.Transfer:
		return d.transfer(ctx, phone, cmd)
	case command.Invalid:
		if cmd.Err != nil && cmd.Err.Command == command.Mint {
			return rejected(d.replies.InvalidMint())
		}
		return rejected(d.replies.InvalidTransfer())
	}
	return outcome{status: metrics.OutcomeRejected}
}

func (d *Dispatcher) register(ctx context.Context, phone string) outcome {
	reg, err := d.deps.Directory.RegisterIfNeeded(ctx, phone)
	if err != nil {
		return failed(err, d.replies.RegistrationFailed())
	}
	if !reg.Created {
		return ok(d.replies.AlreadyRegistered())
	}
	return ok(d.replies.Registered(reg.User.WalletAddress)...)
}

func (d *Dispatcher) balance(ctx context.Context, phone string, kind command.Kind) outcome {
	symbol := d.replies.TokenSymbol
	if kind == command.NativeBalance {
		symbol = d.replies.NativeSymbol
	}

	user, err := d.deps.Directory.Lookup(ctx, phone)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return rejected(d.replies.NotRegistered())
		}
		return failed(err, d.replies.BalanceFailed(symbol))
	}

	if kind == command.NativeBalance {
		b, err := d.deps.Balances.NativeBalance(ctx, user.WalletAddress)
		if err != nil {
			return failed(err, d.replies.BalanceFailed(symbol))
		}
		return ok(d.replies.NativeBalance(b))
	}
	b, err := d.deps.Balances.TokenBalance(ctx, user.WalletAddress)
	if err != nil {
		return failed(err, d.replies.BalanceFailed(symbol))
	}
	return ok(d.replies.TokenBalance(b))
}

func (d *Dispatcher) mint(ctx context.Context, phone string, cmd command.Command) outcome {
	res, err := d.deps.Minter.Mint(ctx, funding.MintInput{Phone: phone, Amount: cmd.Amount})
	switch {
	case err == nil:
		return ok(d.replies.Minted(res.Amount, res.TxHash))
	case errors.Is(err, identity.ErrNotFound):
		return rejected(d.replies.NotRegistered())
	case errors.Is(err, funding.ErrInvalidAmount):
		return rejected(d.replies.InvalidMint())
	default:
		return failed(err, d.replies.MintFailed())
	}
}

func (d *Dispatcher) transfer(ctx context.Context, phone string, cmd command.Command) outcome {
	res, err := d.deps.Transferrer.Transfer(ctx, payments.TransferInput{Phone: phone, To: cmd.To, Amount: cmd.Amount})
	switch {
	case err == nil:
		return ok(d.replies.TransferExecuted(res.TxHash)...)
	case errors.Is(err, identity.ErrNotFound):
		return rejected(d.replies.NotRegistered())
	case errors.Is(err, payments.ErrInvalidAddress):
		return rejected(d.replies.InvalidAddress(cmd.To))
	case errors.Is(err, payments.ErrInvalidAmount):
		return rejected(d.replies.InvalidTransfer())
	default:
		return failed(err, d.replies.TransferFailed())
	}
}
