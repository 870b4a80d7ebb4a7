package simulator

import (
	"context"
	"fmt"
	"math/big"

	"github.com/defistate/defistate-exchange-adapters-go/engine"
	"github.com/defistate/defistate-exchange-adapters-go/protocols/curve"
	"github.com/defistate/defistate-exchange-adapters-go/protocols/erc20"
	"github.com/defistate/defistate-exchange-adapters-go/protocols/uniswapv2"
	"github.com/defistate/defistate-exchange-adapters-go/protocols/uniswapv2/calculator"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Execute runs codes in order with sender as msg.sender. Either every
// instruction applies or, on the first revert, none does.
func (l *Ledger) Execute(ctx context.Context, sender common.Address, codes engine.Codes) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	next := l.st.clone()
	for i, ins := range codes {
		if err := l.apply(next, sender, ins); err != nil {
			l.logger.Debug("Instruction reverted", "index", i, "target", ins.Target, "error", err)
			return fmt.Errorf("instruction %d to %s: %w", i, ins.Target.Hex(), err)
		}
	}
	l.st = next
	l.logger.Debug("Codes executed", "sender", sender, "instructions", len(codes))
	return nil
}

func (l *Ledger) apply(st *state, sender common.Address, ins engine.Instruction) error {
	if len(ins.Payload) < 4 {
		return revert("calldata too short")
	}
	target := ins.Target
	switch {
	case l.routers.Contains(target):
		return l.applyRouter(st, sender, target, ins.Payload)
	case target == l.cfg.RegistryExchange && target != (common.Address{}):
		return l.applyExchange(st, sender, ins.Payload)
	case target == l.cfg.Gateway && target != (common.Address{}):
		return l.applyGateway(st, sender, ins.Payload)
	}
	if spec, ok := l.curvePools[target]; ok {
		return l.applyPool(st, sender, spec, ins.Payload)
	}
	if _, ok := l.decimals[target]; ok {
		return l.applyToken(st, sender, target, ins.Payload)
	}
	return revert("no contract at %s", target.Hex())
}

func decode(parsed abi.ABI, payload []byte) (string, []any, error) {
	method, err := parsed.MethodById(payload[:4])
	if err != nil {
		return "", nil, revert("unknown selector %x", payload[:4])
	}
	args, err := method.Inputs.Unpack(payload[4:])
	if err != nil {
		return "", nil, revert("malformed %s calldata: %v", method.Name, err)
	}
	return method.Name, args, nil
}

// --- ERC-20 ---

func (l *Ledger) applyToken(st *state, sender, token common.Address, payload []byte) error {
	name, args, err := decode(erc20.ABI, payload)
	if err != nil {
		return err
	}
	switch name {
	case "approve":
		spender, amount := args[0].(common.Address), args[1].(*big.Int)
		// USDT semantics: an allowance must be reset to zero before it is changed.
		if amount.Sign() != 0 && st.allowance(token, sender, spender).Sign() != 0 {
			return revert("approve from non-zero to non-zero allowance on %s", token.Hex())
		}
		st.allowances[[3]common.Address{token, sender, spender}] = new(big.Int).Set(amount)
		return nil
	case "transfer":
		return st.move(token, sender, args[0].(common.Address), args[1].(*big.Int))
	}
	return revert("%s is not executable", name)
}

// --- Constant-product router ---

func (l *Ledger) applyRouter(st *state, sender, router common.Address, payload []byte) error {
	name, args, err := decode(uniswapv2.RouterABI, payload)
	if err != nil {
		return err
	}
	if name != "swapExactTokensForTokens" {
		return revert("%s is not executable", name)
	}
	amountIn, minOut := args[0].(*big.Int), args[1].(*big.Int)
	path, to := args[2].([]common.Address), args[3].(common.Address)
	if len(path) < 2 {
		return revert("UniswapV2Router: INVALID_PATH")
	}

	if err := st.pull(path[0], sender, router, amountIn); err != nil {
		return err
	}

	// Each hop prices from the pair's balances and writes back the post-swap
	// reserves, which include the hop's input.
	amount := amountIn
	for hop := 0; hop < len(path)-1; hop++ {
		tokenIn, tokenOut := path[hop], path[hop+1]
		spec, ok := l.findPair(tokenIn, tokenOut)
		if !ok {
			return revert("UniswapV2Router: no pair for %s/%s", tokenIn.Hex(), tokenOut.Hex())
		}
		out, next, err := calculator.SimulateSwap(amount, tokenIn, tokenOut, l.pairPool(st, spec))
		if err != nil {
			return revert("UniswapV2: %v", err)
		}
		st.balances[[2]common.Address{next.Token0, spec.address}] = next.Reserve0
		st.balances[[2]common.Address{next.Token1, spec.address}] = next.Reserve1
		amount = out
	}
	if amount.Cmp(minOut) < 0 {
		return revert("UniswapV2Router: INSUFFICIENT_OUTPUT_AMOUNT")
	}
	last := path[len(path)-1]
	st.balances[[2]common.Address{last, to}] = new(big.Int).Add(st.balance(last, to), amount)
	return nil
}

// --- Curve pool, registry exchange and gateway ---

func (l *Ledger) applyPool(st *state, sender common.Address, spec curveSpec, payload []byte) error {
	parsed, err := curve.PoolABI(spec.desc.CoinCount())
	if err != nil {
		return err
	}
	name, args, err := decode(parsed, payload)
	if err != nil {
		return err
	}
	switch name {
	case "add_liquidity":
		amounts, err := amountSlice(args[0])
		if err != nil {
			return err
		}
		return l.addLiquidity(st, sender, spec.desc.Pool, sender, spec, amounts, args[1].(*big.Int))
	case "remove_liquidity_one_coin":
		index := int(args[1].(*big.Int).Int64())
		return l.removeOneCoin(st, sender, sender, spec, args[0].(*big.Int), index, args[2].(*big.Int))
	}
	return revert("%s is not executable", name)
}

func (l *Ledger) applyExchange(st *state, sender common.Address, payload []byte) error {
	name, args, err := decode(curve.RegistryExchangeABI, payload)
	if err != nil {
		return err
	}
	if name != "exchange" {
		return revert("%s is not executable", name)
	}
	pool, from, to := args[0].(common.Address), l.wrapped(args[1].(common.Address)), l.wrapped(args[2].(common.Address))
	return l.swap(st, sender, l.cfg.RegistryExchange, pool, from, to, args[3].(*big.Int), args[4].(*big.Int), args[5].(common.Address))
}

func (l *Ledger) applyGateway(st *state, sender common.Address, payload []byte) error {
	name, args, err := decode(curve.GatewayABI, payload)
	if err != nil {
		return err
	}
	vault, poolAddr := args[0].(common.Address), args[1].(common.Address)
	spec, ok := l.curvePools[poolAddr]
	if !ok && name != "exchangeETH" {
		return revert("no pool at %s", poolAddr.Hex())
	}

	if name != "exchangeETH" {
		coin, err := coinAt(spec.desc, int(args[4].(*big.Int).Int64()))
		if err != nil {
			return err
		}
		if coin != l.cfg.WrappedNative {
			return revert("gateway only handles the native coin, got %s", coin.Hex())
		}
	}

	switch name {
	case "depositETH":
		if args[2].(common.Address) != spec.desc.LPToken {
			return revert("LP token mismatch for %s", poolAddr.Hex())
		}
		return l.addLiquidity(st, sender, l.cfg.Gateway, vault, spec, args[3].([]*big.Int), args[5].(*big.Int))
	case "withdrawETH":
		lp := args[2].(common.Address)
		if lp != spec.desc.LPToken {
			return revert("LP token mismatch for %s", poolAddr.Hex())
		}
		amount := args[3].(*big.Int)
		if err := st.transferFrom(lp, sender, l.cfg.Gateway, l.cfg.Gateway, amount); err != nil {
			return err
		}
		index := int(args[4].(*big.Int).Int64())
		return l.removeOneCoin(st, l.cfg.Gateway, vault, spec, amount, index, args[5].(*big.Int))
	case "exchangeETH":
		from, to := args[2].(common.Address), args[3].(common.Address)
		return l.swap(st, sender, l.cfg.Gateway, poolAddr, from, to, args[4].(*big.Int), args[5].(*big.Int), vault)
	}
	return revert("%s is not executable", name)
}

// addLiquidity pulls amounts from payer on spender's allowance and mints LP to recipient.
func (l *Ledger) addLiquidity(st *state, payer, spender, recipient common.Address, spec curveSpec, amounts []*big.Int, minMint *big.Int) error {
	minted, err := l.mintAmount(st, spec, amounts)
	if err != nil {
		return err
	}
	if minted.Cmp(minMint) < 0 {
		return revert("minted %s LP, below the minimum %s", minted, minMint)
	}
	for i, a := range amounts {
		if a.Sign() == 0 {
			continue
		}
		coin, err := coinAt(spec.desc, i)
		if err != nil {
			return err
		}
		if err := st.transferFrom(coin, payer, spender, spec.desc.Pool, a); err != nil {
			return err
		}
	}
	st.mint(spec.desc.LPToken, recipient, minted)
	return nil
}

// removeOneCoin burns amount LP held by holder and pays the coin at index to recipient.
func (l *Ledger) removeOneCoin(st *state, holder, recipient common.Address, spec curveSpec, amount *big.Int, index int, minAmount *big.Int) error {
	out, err := l.withdrawOneAmount(st, spec, amount, index)
	if err != nil {
		return err
	}
	if out.Cmp(minAmount) < 0 {
		return revert("not enough coins removed: %s below %s", out, minAmount)
	}
	coin, err := coinAt(spec.desc, index)
	if err != nil {
		return err
	}
	if err := st.burn(spec.desc.LPToken, holder, amount); err != nil {
		return err
	}
	return st.move(coin, spec.desc.Pool, recipient, out)
}

func (l *Ledger) swap(st *state, sender, spender, poolAddr, from, to common.Address, amount, expected *big.Int, receiver common.Address) error {
	spec, ok := l.curvePools[poolAddr]
	if !ok {
		return revert("no pool at %s", poolAddr.Hex())
	}
	out, err := l.swapAmount(st, spec, from, to, amount)
	if err != nil {
		return err
	}
	if out.Cmp(expected) < 0 {
		return revert("exchange resulted in fewer coins than expected: %s below %s", out, expected)
	}
	if err := st.transferFrom(from, sender, spender, poolAddr, amount); err != nil {
		return err
	}
	return st.move(to, poolAddr, receiver, out)
}
