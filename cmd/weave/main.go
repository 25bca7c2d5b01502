package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"

	"github.com/neonsphere/weave"
	"github.com/neonsphere/weave/pkg/cipher"
	"github.com/neonsphere/weave/pkg/model"
)

const usage = `Usage: weave [-config file] [-data dir] <command> [arguments]
Commands:
  register -wallet <addr> -username <name> [-bio <text>] -rep <handle> [-proof <hex> | -seal]
  connect -wallet <addr> -to <userID> -trust <handle> [-proof <hex> | -seal]
  interact -wallet <addr> -conn <connID> -type <handle> -sentiment <handle> -content <hash>
           [-type-proof <hex> -sentiment-proof <hex> | -seal]
  update -wallet <addr> -username <name> [-bio <text>]
  profile <userID>
  lookup <addr>
  connections <userID>
  interactions <connID>
  deactivate <userID>
  verify <userID>
  deactivate-connection <connID>
  stats
  call -wallet <addr> <calldata-hex>
  content-put <file>
  content-get <hash> <output-file>
  export <file>
  import <file>
  seal <handle>
  serve (answers "<sender> <calldata-hex>" lines read from stdin)

Handles are written as [kind:]<64 hex chars>, kind one of ebool, euint8,
euint16, euint32 (default euint8).`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("weave", flag.ContinueOnError)
	global.SetOutput(stderr)
	configPath := global.String("config", "", "YAML configuration file")
	dataDir := global.String("data", "", "data directory (overrides the configuration)")
	if err := global.Parse(args); err != nil {
		return 2
	}
	if global.NArg() < 1 {
		fmt.Fprintln(stderr, usage)
		return 2
	}

	conf, err := loadConfig(*configPath, *dataDir)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return 1
	}

	w, err := weave.New(conf, nil)
	if err != nil {
		fmt.Fprintf(stderr, "Error initializing weave: %v\n", err)
		return 1
	}
	if err := w.Start(ctx); err != nil {
		fmt.Fprintf(stderr, "Error starting weave: %v\n", err)
		return 1
	}

	c := &cli{ctx: ctx, w: w, conf: conf, out: stdout}
	cmd, rest := global.Arg(0), global.Args()[1:]
	if cmd == "serve" {
		err := errors.Join(serve(ctx, w.Dispatcher(), stdin, stdout), w.Close())
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	err = c.dispatch(cmd, rest)
	if cerr := w.Close(); cerr != nil {
		err = errors.Join(err, cerr)
	}
	if errors.Is(err, errUsage) {
		fmt.Fprintln(stderr, usage)
		return 2
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func loadConfig(path, dataDir string) (weave.Config, error) {
	conf := weave.DefaultConfig()
	if path != "" {
		var err error
		if conf, err = weave.LoadConfig(path); err != nil {
			return conf, err
		}
	} else {
		conf.DataDir = defaultDataDir()
	}
	if dataDir != "" {
		conf.DataDir = dataDir
		conf.InMemory = false
	}
	return conf, nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "weave-data"
	}
	return filepath.Join(home, ".weave", "data")
}

var errUsage = errors.New("usage")

type cli struct {
	ctx  context.Context
	w    *weave.Weave
	conf weave.Config
	out  io.Writer
}

func (c *cli) dispatch(cmd string, args []string) error {
	switch cmd {
	case "register":
		return c.register(args)
	case "connect":
		return c.connect(args)
	case "interact":
		return c.interact(args)
	case "update":
		return c.update(args)
	case "profile":
		id, err := idArg(args)
		if err != nil {
			return err
		}
		p, err := c.w.Ledger().GetUserProfile(c.ctx, model.UserID(id))
		if err != nil {
			return err
		}
		return c.print(p)
	case "lookup":
		if len(args) != 1 {
			return errUsage
		}
		wallet, err := model.ParseWallet(args[0])
		if err != nil {
			return err
		}
		id, err := c.w.Ledger().Identities().Lookup(c.ctx, wallet)
		if err != nil {
			return err
		}
		return c.print(map[string]model.UserID{"userId": id})
	case "connections":
		id, err := idArg(args)
		if err != nil {
			return err
		}
		conns, err := c.w.Ledger().Graph().ConnectionsOf(c.ctx, model.UserID(id))
		if err != nil {
			return err
		}
		return c.print(conns)
	case "interactions":
		id, err := idArg(args)
		if err != nil {
			return err
		}
		list, err := c.w.Ledger().Interactions().ListByConnection(c.ctx, model.ConnectionID(id))
		if err != nil {
			return err
		}
		return c.print(list)
	case "deactivate":
		id, err := idArg(args)
		if err != nil {
			return err
		}
		return c.w.Ledger().Identities().Deactivate(c.ctx, model.UserID(id))
	case "verify":
		id, err := idArg(args)
		if err != nil {
			return err
		}
		return c.w.Ledger().Identities().Verify(c.ctx, model.UserID(id))
	case "deactivate-connection":
		id, err := idArg(args)
		if err != nil {
			return err
		}
		return c.w.Ledger().Graph().DeactivateConnection(c.ctx, model.ConnectionID(id))
	case "stats":
		s, err := c.w.Ledger().Stats(c.ctx)
		if err != nil {
			return err
		}
		return c.print(s)
	case "call":
		return c.call(args)
	case "content-put":
		if len(args) != 1 {
			return errUsage
		}
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		hash, err := c.w.Content().Put(c.ctx, f)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.out, hash)
		return nil
	case "content-get":
		if len(args) != 2 {
			return errUsage
		}
		f, err := os.Create(args[1])
		if err != nil {
			return err
		}
		return errors.Join(c.w.Content().Get(c.ctx, args[0], f), f.Close())
	case "export":
		if len(args) != 1 {
			return errUsage
		}
		f, err := os.Create(args[0])
		if err != nil {
			return err
		}
		return errors.Join(c.w.Export(c.ctx, f), f.Close())
	case "import":
		if len(args) != 1 {
			return errUsage
		}
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		return c.w.Import(c.ctx, f)
	case "seal":
		if len(args) != 1 {
			return errUsage
		}
		h, err := parseHandle(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(c.out, hex.EncodeToString(c.sealer().Seal(h)))
		return nil
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func (c *cli) register(args []string) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	walletStr := fs.String("wallet", "", "")
	username := fs.String("username", "", "")
	bio := fs.String("bio", "", "")
	repStr := fs.String("rep", "", "")
	proofStr := fs.String("proof", "", "")
	seal := fs.Bool("seal", false, "")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	wallet, err := model.ParseWallet(*walletStr)
	if err != nil {
		return err
	}
	rep, err := parseHandle(*repStr)
	if err != nil {
		return err
	}
	proof, err := c.proof(rep, *proofStr, *seal)
	if err != nil {
		return err
	}
	id, err := c.w.Ledger().RegisterUser(c.ctx, wallet, *username, *bio, rep, proof)
	if err != nil {
		return err
	}
	return c.print(map[string]model.UserID{"userId": id})
}

func (c *cli) connect(args []string) error {
	fs := flag.NewFlagSet("connect", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	walletStr := fs.String("wallet", "", "")
	to := fs.Uint64("to", 0, "")
	trustStr := fs.String("trust", "", "")
	proofStr := fs.String("proof", "", "")
	seal := fs.Bool("seal", false, "")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	wallet, err := model.ParseWallet(*walletStr)
	if err != nil {
		return err
	}
	trust, err := parseHandle(*trustStr)
	if err != nil {
		return err
	}
	proof, err := c.proof(trust, *proofStr, *seal)
	if err != nil {
		return err
	}
	id, err := c.w.Ledger().CreateConnection(c.ctx, wallet, model.UserID(*to), trust, proof)
	if err != nil {
		return err
	}
	return c.print(map[string]model.ConnectionID{"connectionId": id})
}

func (c *cli) interact(args []string) error {
	fs := flag.NewFlagSet("interact", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	walletStr := fs.String("wallet", "", "")
	conn := fs.Uint64("conn", 0, "")
	typStr := fs.String("type", "", "")
	sentStr := fs.String("sentiment", "", "")
	contentHash := fs.String("content", "", "")
	typProofStr := fs.String("type-proof", "", "")
	sentProofStr := fs.String("sentiment-proof", "", "")
	seal := fs.Bool("seal", false, "")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	wallet, err := model.ParseWallet(*walletStr)
	if err != nil {
		return err
	}
	typ, err := parseHandle(*typStr)
	if err != nil {
		return err
	}
	sent, err := parseHandle(*sentStr)
	if err != nil {
		return err
	}
	typProof, err := c.proof(typ, *typProofStr, *seal)
	if err != nil {
		return err
	}
	sentProof, err := c.proof(sent, *sentProofStr, *seal)
	if err != nil {
		return err
	}
	id, err := c.w.Ledger().CreateInteraction(
		c.ctx, wallet, model.ConnectionID(*conn),
		typ, typProof, sent, sentProof, *contentHash,
	)
	if err != nil {
		return err
	}
	return c.print(map[string]model.InteractionID{"interactionId": id})
}

func (c *cli) update(args []string) error {
	fs := flag.NewFlagSet("update", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	walletStr := fs.String("wallet", "", "")
	username := fs.String("username", "", "")
	bio := fs.String("bio", "", "")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	wallet, err := model.ParseWallet(*walletStr)
	if err != nil {
		return err
	}
	return c.w.Ledger().UpdateProfile(c.ctx, wallet, *username, *bio)
}

func (c *cli) call(args []string) error {
	fs := flag.NewFlagSet("call", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	walletStr := fs.String("wallet", "", "")
	if err := fs.Parse(args); err != nil || fs.NArg() != 1 {
		return errUsage
	}
	sender := common.Address{}
	if *walletStr != "" {
		var err error
		if sender, err = model.ParseWallet(*walletStr); err != nil {
			return err
		}
	}
	data, err := hex.DecodeString(strings.TrimPrefix(fs.Arg(0), "0x"))
	if err != nil {
		return fmt.Errorf("calldata: %w", err)
	}
	out, err := c.w.Dispatcher().Call(c.ctx, sender, data)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, "0x"+hex.EncodeToString(out))
	return nil
}

func (c *cli) sealer() *cipher.KeccakVerifier {
	return cipher.NewKeccakVerifier(c.conf.Verifier.Domain)
}

func (c *cli) proof(h cipher.Handle, s string, seal bool) (cipher.Proof, error) {
	if seal {
		return c.sealer().Seal(h), nil
	}
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("proof: %w", err)
	}
	return cipher.Proof(b), nil
}

func (c *cli) print(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func idArg(args []string) (uint64, error) {
	if len(args) != 1 {
		return 0, errUsage
	}
	id, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q: %w", args[0], err)
	}
	return id, nil
}

// parseHandle reads [kind:]hex.
func parseHandle(s string) (cipher.Handle, error) {
	kind := cipher.KindUint8
	if k, rest, ok := strings.Cut(s, ":"); ok {
		var err error
		if kind, err = cipher.ParseKind(k); err != nil {
			return cipher.Handle{}, err
		}
		s = rest
	}
	payload, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return cipher.Handle{}, fmt.Errorf("handle: %w", err)
	}
	h := cipher.NewHandle(kind, payload)
	return h, h.Validate()
}
