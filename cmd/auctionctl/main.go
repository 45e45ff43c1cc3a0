// Command auctionctl is the operator and bidder toolbox for the share
// auction.
//
// # Commands
//
// keygen: Create a key and write it as an encrypted key file.
//
//	auctionctl keygen --out=bidder.json --password=secret
//
// encrypt-key: Encrypt an existing hex private key.
//
//	auctionctl encrypt-key --key=0x... --out=authority.json --password=secret
//
// possess: Sign the proof of possession an authority needs before issuing.
//
//	auctionctl possess --key-file=bidder.json --password=secret
//
// issue: Issue a certificate as an authority.
//
//	auctionctl issue --key-file=authority.json --password=secret \
//	    --subject=0x... --expiry=2030 --possession=0x... --out=cert.json
//
// seal: Compute the commitment hash of a bid.
//
//	auctionctl seal --shares=100 --price=2500000000000000
//
// bind: Compute the ownership binding of a certificate for a caller.
//
//	auctionctl bind --cert=cert.json --caller=0x...
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/shareauction/internal/config"
	"github.com/alanyoungcy/shareauction/internal/crypto"
	"github.com/alanyoungcy/shareauction/internal/domain"
)

// credential is the file an authority hands a bidder: the certificate plus
// the authority's signature over it.
type credential struct {
	Certificate  domain.Certificate `json:"certificate"`
	AuthoritySig hexutil.Bytes      `json:"authority_sig"`
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "keygen":
		err = runKeygen(args, os.Stdout)
	case "encrypt-key":
		err = runEncryptKey(args, os.Stdout)
	case "possess":
		err = runPossess(args, os.Stdout)
	case "issue":
		err = runIssue(args, os.Stdout)
	case "seal":
		err = runSeal(args, os.Stdout)
	case "bind":
		err = runBind(args, os.Stdout)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil && !errors.Is(err, flag.ErrHelp) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`auctionctl - share auction toolbox

Usage:
  auctionctl <command> [options]

Commands:
  keygen        Create an encrypted key file
  encrypt-key   Encrypt an existing private key
  possess       Sign the proof of possession for your address
  issue         Issue a certificate (authority)
  seal          Compute a bid commitment hash
  bind          Compute a certificate ownership binding

Run 'auctionctl <command> --help' for command-specific options.`)
}

// keyFlags resolves a signing key from flags, falling back to the [keys]
// section of an optional config file.
type keyFlags struct {
	configPath string
	rawKey     string
	keyFile    string
	password   string
}

func (k *keyFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&k.configPath, "config", "", "config file whose [keys] section supplies defaults")
	fs.StringVar(&k.rawKey, "key", "", "hex private key")
	fs.StringVar(&k.keyFile, "key-file", "", "encrypted key file")
	fs.StringVar(&k.password, "password", "", "password of the encrypted key file")
}

func (k *keyFlags) signer() (*crypto.Signer, error) {
	kc := crypto.KeyConfig{
		RawPrivateKey:    k.rawKey,
		EncryptedKeyPath: k.keyFile,
		KeyPassword:      k.password,
	}
	if k.configPath != "" && kc.RawPrivateKey == "" && kc.EncryptedKeyPath == "" {
		cfg, err := config.Load(k.configPath)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		kc = crypto.KeyConfig{
			RawPrivateKey:    cfg.Keys.PrivateKey,
			EncryptedKeyPath: cfg.Keys.EncryptedKeyPath,
			KeyPassword:      cfg.Keys.KeyPassword,
		}
		if k.password != "" {
			kc.KeyPassword = k.password
		}
	}
	return crypto.LoadSigner(kc)
}

// --- keygen ---

func runKeygen(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	path := fs.String("out", "", "encrypted key file to write (required)")
	password := fs.String("password", "", "password to encrypt with (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *path == "" || *password == "" {
		return errors.New("--out and --password are required")
	}

	s, err := crypto.GenerateSigner()
	if err != nil {
		return err
	}
	if err := crypto.WriteEncryptedKey(*path, s, *password); err != nil {
		return err
	}
	fmt.Fprintf(out, "address: %s\nkey file: %s\n", s.Address().Hex(), *path)
	return nil
}

// --- encrypt-key ---

func runEncryptKey(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("encrypt-key", flag.ContinueOnError)
	key := fs.String("key", "", "hex private key (required)")
	path := fs.String("out", "", "encrypted key file to write (required)")
	password := fs.String("password", "", "password to encrypt with (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *key == "" || *path == "" || *password == "" {
		return errors.New("--key, --out and --password are required")
	}

	s, err := crypto.NewSigner(*key)
	if err != nil {
		return err
	}
	if err := crypto.WriteEncryptedKey(*path, s, *password); err != nil {
		return err
	}
	fmt.Fprintf(out, "address: %s\nkey file: %s\n", s.Address().Hex(), *path)
	return nil
}

// --- possess ---

func runPossess(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("possess", flag.ContinueOnError)
	var kf keyFlags
	kf.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	s, err := kf.signer()
	if err != nil {
		return err
	}
	sig, err := crypto.SignPossession(s)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "subject: %s\npossession: %s\n", s.Address().Hex(), hexutil.Encode(sig))
	return nil
}

// --- issue ---

func runIssue(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("issue", flag.ContinueOnError)
	var kf keyFlags
	kf.register(fs)
	subject := fs.String("subject", "", "certified address (required)")
	expiry := fs.Uint("expiry", 0, "expiry year (required)")
	possession := fs.String("possession", "", "subject's possession signature, hex (required)")
	path := fs.String("out", "", "credential file to write; stdout when empty")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !common.IsHexAddress(*subject) {
		return fmt.Errorf("--subject must be a hex address, got %q", *subject)
	}
	if *expiry == 0 || *expiry > 0xffff {
		return errors.New("--expiry must be a year")
	}
	sig, err := hexutil.Decode(*possession)
	if err != nil {
		return fmt.Errorf("--possession: %w", err)
	}

	authority, err := kf.signer()
	if err != nil {
		return err
	}
	cert, authSig, err := crypto.IssueCertificate(authority, common.HexToAddress(*subject), uint16(*expiry), sig)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(credential{Certificate: cert, AuthoritySig: authSig}, "", "  ")
	if err != nil {
		return err
	}
	if *path == "" {
		_, err = fmt.Fprintln(out, string(data))
		return err
	}
	if err := os.WriteFile(*path, data, 0o644); err != nil {
		return fmt.Errorf("writing credential: %w", err)
	}
	fmt.Fprintf(out, "certificate for %s written to %s\n", cert.Subject.Hex(), *path)
	return nil
}

// --- seal ---

func runSeal(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("seal", flag.ContinueOnError)
	shares := fs.Uint64("shares", 0, "number of shares (required)")
	price := fs.String("price", "", "price per share in base units, decimal (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *shares == 0 {
		return errors.New("--shares must be > 0")
	}
	p, err := uint256.FromDecimal(*price)
	if err != nil {
		return fmt.Errorf("--price: %w", err)
	}
	_, err = fmt.Fprintln(out, crypto.SealBid(*shares, p).Hex())
	return err
}

// --- bind ---

func runBind(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("bind", flag.ContinueOnError)
	certPath := fs.String("cert", "", "credential file written by issue (required)")
	caller := fs.String("caller", "", "address that will present the certificate; defaults to its subject")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *certPath == "" {
		return errors.New("--cert is required")
	}

	cred, err := readCredential(*certPath)
	if err != nil {
		return err
	}
	who := cred.Certificate.Subject
	if *caller != "" {
		if !common.IsHexAddress(*caller) {
			return fmt.Errorf("--caller must be a hex address, got %q", *caller)
		}
		who = common.HexToAddress(*caller)
	}
	_, err = fmt.Fprintln(out, crypto.OwnershipBinding(cred.Certificate, who).Hex())
	return err
}

func readCredential(path string) (credential, error) {
	var cred credential
	data, err := os.ReadFile(path)
	if err != nil {
		return cred, fmt.Errorf("reading credential: %w", err)
	}
	if err := json.Unmarshal(data, &cred); err != nil {
		return cred, fmt.Errorf("decoding credential: %w", err)
	}
	return cred, nil
}
