package geneva

// Strategies is a list of published Geneva strategies, in canonical form.
//
// The outbound (client-side) entries come from the Geneva project's strategy list for China, India, Iran, and
// Kazakhstan; the SYN+ACK entries are server-side strategies that are applied to the server's outbound traffic.
var Strategies = []string{
	// TCB desynchronization and teardown.
	`[TCP:flags:PA]-duplicate(tamper{TCP:dataofs:replace:10}(tamper{TCP:chksum:corrupt},),)-| \/`,
	`[TCP:flags:PA]-duplicate(tamper{TCP:flags:replace:R}(tamper{TCP:chksum:corrupt},),)-| \/`,
	`[TCP:flags:PA]-duplicate(tamper{TCP:flags:replace:R}(tamper{IP:ttl:replace:10},),)-| \/`,
	`[TCP:flags:PA]-duplicate(tamper{TCP:flags:replace:FREACN}(tamper{IP:ttl:replace:10},),)-| \/`,
	`[TCP:flags:PA]-duplicate(tamper{TCP:load:corrupt}(tamper{TCP:chksum:corrupt},),)-| \/`,
	`[TCP:flags:PA]-duplicate(tamper{TCP:ack:corrupt}(tamper{IP:ttl:replace:10},),)-| \/`,
	`[TCP:flags:A]-duplicate(tamper{TCP:flags:replace:R}(tamper{TCP:chksum:corrupt},),)-| \/`,
	`[TCP:flags:A]-duplicate(,tamper{TCP:options-md5header:corrupt}(tamper{TCP:flags:replace:R},))-| \/`,

	// Segmentation.
	`[TCP:flags:PA]-fragment{tcp:8:False}-| [TCP:flags:A]-tamper{TCP:seq:corrupt}-| \/`,
	`[TCP:flags:PA]-fragment{tcp:-1:True}(duplicate,)-| \/`,
	`[TCP:flags:PA]-fragment{tcp:-1:False}-| \/`,
	`[TCP:flags:PA]-fragment{ip:-1:True}-| \/`,

	// Invalid options and lengths.
	`[TCP:flags:PA]-duplicate(tamper{IP:len:replace:64},)-| \/`,
	`[TCP:flags:PA]-duplicate(tamper{TCP:flags:replace:F}(tamper{IP:len:replace:78},),)-| \/`,
	`[TCP:flags:PA]-duplicate(tamper{TCP:options-uto:corrupt}(tamper{TCP:chksum:corrupt},),)-| \/`,

	// Server-side.
	`[TCP:flags:SA]-tamper{TCP:window:replace:98}(tamper{TCP:options-wscale:replace:},)-| \/`,
	`[TCP:flags:SA]-tamper{TCP:window:replace:10}(tamper{TCP:options-wscale:replace:},)-| \/`,
	`[TCP:flags:SA]-duplicate(tamper{TCP:flags:replace:R},tamper{TCP:flags:replace:S})-| \/`,
	`[TCP:flags:SA]-tamper{TCP:flags:replace:F}(duplicate,)-| \/`,
	`[TCP:flags:SA]-duplicate(tamper{TCP:load:replace:GET / HTTP/1.1}(tamper{TCP:flags:replace:FPA},),)-| \/`,

	// Simultaneous open, from the original paper.
	`[TCP:flags:S]-duplicate(tamper{TCP:flags:replace:SA},)-| \/ [TCP:flags:R]-drop-|`,
}
