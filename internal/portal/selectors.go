package portal

// Portal entry points. The site is a hash-routed SPA; everything lives
// under /echannel/#/.
const (
	signinURL   = "https://my.te.eg/echannel/#/home/signin"
	overviewURL = "https://my.te.eg/echannel/#/accountoverview"
	usageURL    = "https://my.te.eg/echannel/#/overview"
)

// Sign-in form selectors. The form is Ant Design; the service-type picker
// is an ant-select whose dropdown renders detached from the trigger.
const (
	selInputService       = `input[placeholder*="Service"]`
	selServiceTypeTrigger = ".ant-select-selector"
	selServiceDropdown    = ".ant-select-dropdown"
	selDropdownOption     = ".ant-select-dropdown .ant-select-item-option-content"
	selActiveOption       = ".ant-select-dropdown .ant-select-item-option-active .ant-select-item-option-content"
	selInputPassword      = "#login_password_input_01"
	selLoginButton        = "#login-withecare"
)

// overviewMarkers are text fragments that show up once the account
// overview screen has actually rendered. The SPA serves its shell
// instantly and fills data in later, so presence of any marker is the
// readiness signal.
var overviewMarkers = []string{
	"usage overview",
	"current balance",
	"home internet",
	"remaining",
}
