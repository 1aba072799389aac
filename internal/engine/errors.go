package engine

import "github.com/avrabe/wrt/api"

func errUnexpectedEnd() error {
	return api.NewError(api.ErrorCategoryParse, api.CodeUnexpectedEOF, "function body ends without matching end")
}

func errUnsupportedOpcode(op opcode) error {
	return api.NewError(api.ErrorCategoryValidation, api.CodeUnreachable, "unsupported opcode 0x%02x", op)
}

func errUnsupportedMiscOp(op miscOp) error {
	return api.NewError(api.ErrorCategoryValidation, api.CodeUnreachable, "unsupported 0xfc sub-opcode %d", op)
}

func errUnsupportedVecOp(op vecOp) error {
	return api.NewError(api.ErrorCategoryValidation, api.CodeUnreachable, "unsupported 0xfd sub-opcode %d", op)
}
