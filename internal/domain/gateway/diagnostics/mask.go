package diagnostics

// Mask 请求头中的 ReturnDiagnostics 位掩码
type Mask uint32

const (
	ServiceSymbolicID         Mask = 0x01
	ServiceLocalizedText      Mask = 0x02
	ServiceAdditionalInfo     Mask = 0x04
	ServiceInnerStatusCode    Mask = 0x08
	ServiceInnerDiagnostics   Mask = 0x10
	OperationSymbolicID       Mask = 0x20
	OperationLocalizedText    Mask = 0x40
	OperationAdditionalInfo   Mask = 0x80
	OperationInnerStatusCode  Mask = 0x100
	OperationInnerDiagnostics Mask = 0x200

	ServiceLevel   = ServiceSymbolicID | ServiceLocalizedText | ServiceAdditionalInfo | ServiceInnerStatusCode | ServiceInnerDiagnostics
	OperationLevel = OperationSymbolicID | OperationLocalizedText | OperationAdditionalInfo | OperationInnerStatusCode | OperationInnerDiagnostics
	All            = ServiceLevel | OperationLevel
)

// Has 是否包含全部指定位
func (m Mask) Has(bits Mask) bool {
	return m&bits == bits
}

// OperationLevel 是否请求了操作级诊断
func (m Mask) OperationLevel() bool {
	return m&OperationLevel != 0
}
