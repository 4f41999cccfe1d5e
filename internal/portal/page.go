package portal

// indexPage is the provisioning form served at the portal root. It posts the
// network name and password to the set-wifi API as a classic urlencoded form
// so that even the most minimal captive-portal browsers can submit it.
const indexPage = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>AuraLink Setup</title>
<style>
body { font-family: sans-serif; max-width: 24em; margin: 2em auto; padding: 0 1em; }
label { display: block; margin-top: 1em; }
input { width: 100%; padding: 0.5em; margin-top: 0.25em; box-sizing: border-box; }
button { margin-top: 1.5em; width: 100%; padding: 0.75em; }
#result { margin-top: 1em; }
</style>
</head>
<body>
<h2>AuraLink Setup</h2>
<p>Enter your Wi-Fi details. The device will restart and join your network.</p>
<form id="f" method="POST" action="/api/set-wifi">
<label>Network name<input name="ssid" maxlength="32" required></label>
<label>Password<input name="password" type="password" maxlength="64"></label>
<button type="submit">Connect</button>
</form>
<div id="result"></div>
<script>
document.getElementById('f').addEventListener('submit', function (e) {
  e.preventDefault();
  var body = new URLSearchParams(new FormData(this)).toString();
  fetch('/api/set-wifi', {
    method: 'POST',
    headers: {'Content-Type': 'application/x-www-form-urlencoded'},
    body: body
  }).then(function (r) { return r.json(); }).then(function (j) {
    document.getElementById('result').textContent = j.message;
  }).catch(function () {
    document.getElementById('result').textContent = 'Saved. The device is restarting.';
  });
});
</script>
</body>
</html>
`

// redirectPage is served to clients whose connectivity probe landed on an
// arbitrary URL. The meta refresh covers browsers with scripting disabled
// and the script covers probes that ignore refresh headers.
const redirectPage = `<!DOCTYPE html><html><head>
<meta http-equiv='refresh' content='0;url=%[1]s'>
<script>window.location.href='%[1]s';</script>
</head><body>
<h2>Opening device setup...</h2>
<p>If nothing happens, <a href='%[1]s'>tap here</a>.</p>
</body></html>`

// applePage is the variant for Apple captive-network assistants, which
// render the page in a minimal sheet without reliable script support.
const applePage = `<!DOCTYPE html><html><head>
<meta http-equiv='refresh' content='0;url=%[1]s'>
</head><body>
<h2>Opening device setup...</h2>
<p><a href='%[1]s'>Tap here</a> to continue.</p>
</body></html>`
