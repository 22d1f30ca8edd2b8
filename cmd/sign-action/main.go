// sign-action builds, signs, and verifies an order envelope offline. No
// network access: useful for inspecting the exact wire bytes a given
// intent produces and for checking a key against its expected address.
package main

import (
	"flag"
	"fmt"
	"os"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	hlcrypto "github.com/uhyunpark/hyperflow/pkg/crypto"
	"github.com/uhyunpark/hyperflow/pkg/exchange"
	"github.com/uhyunpark/hyperflow/pkg/meta"
	"github.com/uhyunpark/hyperflow/pkg/nonce"
	"github.com/uhyunpark/hyperflow/pkg/order"
	"github.com/uhyunpark/hyperflow/pkg/util"
)

func main() {
	var (
		keyHex  = flag.String("key", "", "signing key hex (empty generates an ephemeral one)")
		testnet = flag.Bool("testnet", false, "sign for testnet")
		symbol  = flag.String("coin", "BTC", "asset symbol")
		assetID = flag.Int("asset", 0, "asset index")
		sell    = flag.Bool("sell", false, "sell instead of buy")
		size    = flag.String("size", "0.001", "order size")
		price   = flag.String("price", "", "limit price")
		tif     = flag.String("tif", "GTC", "time in force (GTC|IOC|ALO)")
		tick    = flag.String("tick", "0.1", "price tick size")
		szDec   = flag.Int("szdec", 3, "size decimals")
	)
	flag.Parse()

	// Step 1: load or generate the key
	var (
		signer *hlcrypto.Signer
		err    error
	)
	if *keyHex == "" {
		fmt.Println("No key given, generating an ephemeral keypair...")
		signer, err = hlcrypto.GenerateKey()
	} else {
		signer, err = hlcrypto.FromPrivateKeyHex(*keyHex)
	}
	if err != nil {
		fatal("key: %v", err)
	}
	fmt.Printf("Address: %s\n\n", signer.Address().Hex())

	// Step 2: build the order wire
	if *price == "" {
		fatal("-price is required")
	}
	asset := meta.Asset{
		Symbol:     *symbol,
		AssetID:    *assetID,
		SzDecimals: int32(*szDec),
		TickSize:   decimal.RequireFromString(*tick),
	}
	intent := order.Intent{
		Symbol:  *symbol,
		IsBuy:   !*sell,
		Size:    decimal.RequireFromString(*size),
		LimitPx: decimal.RequireFromString(*price),
		Type:    order.Limit,
		TIF:     order.TimeInForce(*tif),
		Cloid:   order.NewCloid(),
	}
	wire, err := order.Build(intent, asset)
	if err != nil {
		fatal("build order: %v", err)
	}
	fmt.Println("Order Details:")
	fmt.Printf("  Coin: %s (asset %d)\n", *symbol, *assetID)
	side := "buy"
	if *sell {
		side = "sell"
	}
	fmt.Printf("  Side: %s\n", side)
	fmt.Printf("  Price: %s\n", wire.Price)
	fmt.Printf("  Size: %s\n", wire.Size)
	fmt.Printf("  Cloid: %s\n\n", wire.Cloid)

	// Step 3: sign the action
	action := exchange.NewOrderAction(order.Group{
		Grouping: order.GroupingNA,
		Orders:   []order.Wire{wire},
	})
	n := nonce.NewManager(util.RealClock{}).Next()
	isMainnet := !*testnet
	sig, err := hlcrypto.SignL1Action(signer, action, n, isMainnet, nil, nil)
	if err != nil {
		fatal("sign: %v", err)
	}

	// Step 4: print the envelope
	env := exchange.NewEnvelope(action, exchange.ActionTypeOrder, n, sig, nil, nil)
	out, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		fatal("marshal envelope: %v", err)
	}
	fmt.Println("Signed Envelope (JSON):")
	fmt.Println(string(out))
	fmt.Println()

	// Step 5: verify the signature recovers the signing address
	fmt.Println("Verifying signature...")
	recovered, err := hlcrypto.RecoverL1ActionSigner(action, n, isMainnet, nil, nil, sig)
	if err != nil {
		fatal("verify: %v", err)
	}
	if recovered != signer.Address() {
		fmt.Printf("✗ Signature INVALID (recovered %s)\n", recovered.Hex())
		os.Exit(1)
	}
	fmt.Println("✓ Signature VALID")
	fmt.Printf("  Signer: %s\n", recovered.Hex())
}

func fatal(format string, args ...any) {
	fmt.Printf("Error: "+format+"\n", args...)
	os.Exit(1)
}
