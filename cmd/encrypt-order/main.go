package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/uhyunpark/darkswap/pkg/api"
	"github.com/uhyunpark/darkswap/pkg/match"
	"github.com/uhyunpark/darkswap/pkg/mpc"
)

// Encrypts a bid/ask order pair for confidential matching and prints the
// ready-to-POST request body. The cluster's x25519 public key comes from
// GET /api/v1/cluster on the node.

type orderFlags struct {
	asset  uint64
	side   string
	amount uint64
	price  uint64
	expiry uint64
	trader uint64
}

func orderFlagSet(prefix string, f *orderFlags) {
	flag.Uint64Var(&f.asset, prefix+"-asset", 1, prefix+" asset id")
	flag.StringVar(&f.side, prefix+"-side", "", prefix+" side: buy or sell")
	flag.Uint64Var(&f.amount, prefix+"-amount", 0, prefix+" amount")
	flag.Uint64Var(&f.price, prefix+"-price", 0, prefix+" limit price")
	flag.Uint64Var(&f.expiry, prefix+"-expiry", 0, prefix+" expiry (unix seconds, 0 = none)")
	flag.Uint64Var(&f.trader, prefix+"-trader", 0, prefix+" trader id")
}

func (f *orderFlags) toOrder() (match.Order, error) {
	var side match.Side
	switch f.side {
	case "buy":
		side = match.Buy
	case "sell":
		side = match.Sell
	default:
		return match.Order{}, fmt.Errorf("invalid side %q (want buy or sell)", f.side)
	}
	if f.expiry != 0 && f.expiry <= uint64(time.Now().Unix()) {
		return match.Order{}, fmt.Errorf("order expired at %d", f.expiry)
	}
	return match.Order{
		Asset:    f.asset,
		Side:     side,
		Amount:   f.amount,
		Price:    f.price,
		Expiry:   f.expiry,
		TraderID: f.trader,
	}, nil
}

func main() {
	var bidF, askF orderFlags
	orderFlagSet("bid", &bidF)
	orderFlagSet("ask", &askF)
	clusterKey := flag.String("cluster-key", "", "cluster x25519 public key (0x-hex, 32 bytes)")
	requestID := flag.Uint64("request-id", 1, "computation request id")
	flag.Parse()

	bid, err := bidF.toOrder()
	if err != nil {
		fatalf("bid: %v", err)
	}
	ask, err := askF.toOrder()
	if err != nil {
		fatalf("ask: %v", err)
	}

	keyBytes, err := hexutil.Decode(*clusterKey)
	if err != nil || len(keyBytes) != 32 {
		fatalf("cluster-key: need 32 bytes of 0x-hex")
	}
	var clusterPub [32]byte
	copy(clusterPub[:], keyBytes)

	kp, err := mpc.GenerateKeyPair()
	if err != nil {
		fatalf("keygen: %v", err)
	}
	shared, err := mpc.SharedSecret(kp.Private, clusterPub)
	if err != nil {
		fatalf("key exchange: %v", err)
	}
	nonce, err := mpc.NewNonce()
	if err != nil {
		fatalf("nonce: %v", err)
	}

	cipher := mpc.NewCipher(shared)
	encBid := mpc.EncryptOrder(cipher, bid, nonce, 0)
	encAsk := mpc.EncryptOrder(cipher, ask, nonce, mpc.AskArgBase)

	req := api.SubmitMatchRequest{
		RequestID: *requestID,
		PublicKey: hexutil.Encode(kp.Public[:]),
		Nonce:     hexutil.Encode(nonce[:]),
		Bid:       hexFields(encBid),
		Ask:       hexFields(encAsk),
	}

	body, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		fatalf("marshal: %v", err)
	}

	fmt.Printf("Ephemeral private key: %s (needed to decrypt the result)\n\n", hexutil.Encode(kp.Private[:]))
	fmt.Println("POST http://localhost:8080/api/v1/match")
	fmt.Println("Content-Type: application/json")
	fmt.Println(string(body))
}

func hexFields(fields [6][mpc.CiphertextSize]byte) []string {
	out := make([]string, len(fields))
	for i := range fields {
		out[i] = hexutil.Encode(fields[i][:])
	}
	return out
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
