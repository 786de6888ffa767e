package chain

import (
	"errors"

	"daoup/internal/model"
)

func modelCoin(denom, amount string) model.Coin {
	return model.Coin{Denom: denom, Amount: amount}
}

func errorsAs(err error, target **Error) bool {
	return errors.As(err, target)
}
