// sign-order builds, salts, and signs a limit order offline, printing
// the JSON payload the bookd API accepts at POST /api/v1/orders.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/signbook/signbook/pkg/chain"
	"github.com/signbook/signbook/pkg/crypto"
	"github.com/signbook/signbook/pkg/salt"
	"github.com/signbook/signbook/pkg/units"
)

func main() {
	var (
		keyHex     = flag.String("key", "", "maker private key (hex, no 0x); generated when empty")
		bookToken  = flag.String("book-token", "", "token offered by the maker")
		execToken  = flag.String("exec-token", "", "token required in return (0x0 = native asset)")
		bookAmount = flag.String("book-amount", "", "decimal amount offered")
		execAmount = flag.String("exec-amount", "", "decimal amount required")
		decimals   = flag.Int("decimals", 18, "token decimals for both amounts")
		duration   = flag.Duration("duration", 24*time.Hour, "validity window length")
		settlement = flag.String("settlement", "0x9e2873c1c89696987F671861901A06Ad7Cb97f8C", "settlement contract address")
	)
	flag.Parse()

	var signer *crypto.Signer
	var err error
	if *keyHex == "" {
		fmt.Println("Generating new keypair...")
		signer, err = crypto.GenerateKey()
		if err == nil {
			fmt.Printf("Private Key: %s (KEEP SECRET!)\n", signer.PrivateKeyHex())
		}
	} else {
		signer, err = crypto.FromPrivateKeyHex(*keyHex)
	}
	fatalIf(err)
	fmt.Printf("Maker: %s\n\n", signer.Address().Hex())

	if !common.IsHexAddress(*bookToken) || !common.IsHexAddress(*execToken) {
		fatalIf(fmt.Errorf("both -book-token and -exec-token must be addresses"))
	}

	bookUnits, err := units.ToUnits(*bookAmount, *decimals)
	fatalIf(err)
	execUnits, err := units.ToUnits(*execAmount, *decimals)
	fatalIf(err)

	orderSalt, err := salt.Generate(time.Now().UnixMilli(), *duration)
	fatalIf(err)

	// the sim chain derives ids exactly like the settlement contract,
	// so signing works offline
	sim := chain.NewSim(common.HexToAddress(*settlement))
	orderID, err := sim.DeriveOrderID(context.Background(),
		common.HexToAddress(*bookToken), common.HexToAddress(*execToken),
		bookUnits, execUnits, signer.Address(), orderSalt)
	fatalIf(err)

	signature, err := signer.SignOrderID(orderID)
	fatalIf(err)

	payload := map[string]string{
		"orderId":    orderID.Hex(),
		"bookToken":  common.HexToAddress(*bookToken).Hex(),
		"execToken":  common.HexToAddress(*execToken).Hex(),
		"bookAmount": bookUnits.String(),
		"execAmount": execUnits.String(),
		"maker":      signer.Address().Hex(),
		"salt":       orderSalt.String(),
		"signature":  hexutil.Encode(signature),
	}
	out, err := json.MarshalIndent(payload, "", "  ")
	fatalIf(err)
	fmt.Println(string(out))
}

func fatalIf(err error) {
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}
