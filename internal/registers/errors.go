package registers

import "errors"

var ErrUnknownQuantity = errors.New("unknown quantity")
